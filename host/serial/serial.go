// Package serial opens the port the radio modem is attached to
package serial

import (
	"io"
	"time"
)

// Port is a serial line. Tests substitute one end of a net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards pending input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path, e.g. "/dev/ttyUSB0" or "COM3"
	Device string

	// Baud is the UART rate between host and modem
	Baud int

	// ReadTimeout bounds each Read; zero blocks
	ReadTimeout time.Duration
}

// DefaultBaud is the modem firmware's UART rate
const DefaultBaud = 115200

// DefaultConfig returns the modem settings for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
