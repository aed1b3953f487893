// Package config loads host settings from a file and RADIOLINK_ environment
// variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"radiolink/radio"
)

// RadioConfig mirrors radio.Config with config-file friendly types
type RadioConfig struct {
	Baudrate uint32 `mapstructure:"baudrate"`
	Band     string `mapstructure:"band"`
	Channel  uint8  `mapstructure:"channel"`
	SyncWord uint16 `mapstructure:"syncWord"`
	TxPower  int8   `mapstructure:"txPower"`
	EnablePA bool   `mapstructure:"enablePA"`
	LBTRSSI  int8   `mapstructure:"lbtRSSI"`
}

// ModemConfig selects the serial port of the radio modem
type ModemConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// LumberjackConfig controls log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig holds the level, encoder and optional file output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// GatewayConfig configures the coordinator service
type GatewayConfig struct {
	ID           uint32        `mapstructure:"id"`
	HTTPAddr     string        `mapstructure:"httpAddr"`
	DBPath       string        `mapstructure:"dbPath"`
	CommandRate  float64       `mapstructure:"commandRate"`
	CommandBurst int           `mapstructure:"commandBurst"`
	NodeTTL      time.Duration `mapstructure:"nodeTTL"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// SimulateConfig drives the simulate command
type SimulateConfig struct {
	Leaves          int           `mapstructure:"leaves"`
	Duration        time.Duration `mapstructure:"duration"`
	LossPercent     float64       `mapstructure:"lossPercent"`
	ReadoutInterval uint32        `mapstructure:"readoutInterval"`
}

// SettingsConfig points at a flash image holding a settings record
type SettingsConfig struct {
	Path      string `mapstructure:"path"`
	Size      int64  `mapstructure:"size"`
	EraseSize int64  `mapstructure:"eraseSize"`
	Page      int64  `mapstructure:"page"`
}

// Config is the top-level structure
type Config struct {
	Radio    RadioConfig    `mapstructure:"radio"`
	Modem    ModemConfig    `mapstructure:"modem"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Settings SettingsConfig `mapstructure:"settings"`
}

// Load reads path (YAML, TOML or JSON) over the defaults. An empty path
// looks for radiolink.yaml in the working directory; a missing file is
// not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("radiolink")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("RADIOLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := radio.DefaultConfig()
	v.SetDefault("radio.baudrate", uint32(def.Baudrate))
	v.SetDefault("radio.band", def.Band.String())
	v.SetDefault("radio.channel", def.Channel)
	v.SetDefault("radio.syncWord", def.SyncWord)
	v.SetDefault("radio.txPower", def.TxPower)
	v.SetDefault("radio.enablePA", def.EnablePA)
	v.SetDefault("radio.lbtRSSI", 0)

	v.SetDefault("modem.device", "/dev/ttyUSB0")
	v.SetDefault("modem.baud", 115200)
	v.SetDefault("modem.readTimeout", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("gateway.id", 0)
	v.SetDefault("gateway.httpAddr", ":8080")
	v.SetDefault("gateway.dbPath", "radiolink.db")
	v.SetDefault("gateway.commandRate", 1.0)
	v.SetDefault("gateway.commandBurst", 4)
	v.SetDefault("gateway.nodeTTL", "15m")
	v.SetDefault("gateway.pollInterval", "1ms")

	v.SetDefault("simulate.leaves", 3)
	v.SetDefault("simulate.duration", "30s")
	v.SetDefault("simulate.lossPercent", 0.0)
	v.SetDefault("simulate.readoutInterval", 5)

	v.SetDefault("settings.path", "settings.db")
	v.SetDefault("settings.size", 4096)
	v.SetDefault("settings.eraseSize", 4096)
	v.SetDefault("settings.page", 0)
}

// RadioSettings converts the radio section and validates it
func (c *Config) RadioSettings() (radio.Config, error) {
	band, err := radio.ParseBand(c.Radio.Band)
	if err != nil {
		return radio.Config{}, err
	}
	baud, err := radio.ValidateBaudrate(c.Radio.Baudrate)
	if err != nil {
		return radio.Config{}, err
	}
	rc := radio.Config{
		Baudrate: baud,
		Band:     band,
		Channel:  c.Radio.Channel,
		SyncWord: c.Radio.SyncWord,
		TxPower:  c.Radio.TxPower,
		EnablePA: c.Radio.EnablePA,
		LBTRSSI:  c.Radio.LBTRSSI,
	}
	if err := rc.Validate(); err != nil {
		return radio.Config{}, err
	}
	return rc, nil
}
