// Package logging builds the host zap logger
package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"radiolink/host/config"
)

// ParseLevel maps a config level name, defaulting to info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// New writes to stderr, and also to a rotating file when one is configured.
// stdout is left to the console lines of the gateway.
func New(cfg config.LoggingConfig) *zap.Logger {
	return NewWithSink(cfg, zapcore.AddSync(os.Stderr))
}

// NewWithSink is New with the console output replaced
func NewWithSink(cfg config.LoggingConfig, console zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	}

	ws := console
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		ws = zapcore.NewMultiWriteSyncer(console, zapcore.AddSync(lj))
	}

	core := zapcore.NewCore(encoder, ws, ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller())
}

// TraceWriter adapts a logger to the engine's transition trace hook
func TraceWriter(log *zap.Logger) func(string) {
	return func(line string) {
		log.Debug(line)
	}
}
