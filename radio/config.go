package radio

import (
	"fmt"
	"strings"
)

// Band selects a sub-GHz frequency range
type Band uint8

const (
	Band433   Band = iota // 433.05 - 434.79 MHz
	Band866               // 865.0 - 867.0 MHz
	Band868G              // 863.0 - 870.0 MHz
	Band868G1             // 868.0 - 868.6 MHz
	Band868G2             // 868.7 - 869.2 MHz
	Band868G3             // 869.4 - 869.65 MHz
	Band868G4             // 869.7 - 870.0 MHz
	Band915               // 902.0 - 912.0 MHz
	bandCount
)

var bandNames = [bandCount]string{"433", "866", "868g", "868g1", "868g2", "868g3", "868g4", "915"}

func (b Band) String() string {
	if b < bandCount {
		return bandNames[b]
	}
	return "band(" + fmt.Sprint(uint8(b)) + ")"
}

// ParseBand accepts the names printed by Band.String
func ParseBand(s string) (Band, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range bandNames {
		if name == s {
			return Band(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBand, s)
}

// plan describes a band in units of 10 kHz. A zero step means the channels
// split the span evenly.
type plan struct {
	base uint32
	span uint32
	step uint32
}

var plans = [bandCount]plan{
	Band433:   {base: 43302, step: 20},
	Band866:   {base: 86500, step: 20},
	Band868G:  {base: 86300, span: 700},
	Band868G1: {base: 86800, span: 60},
	Band868G2: {base: 86870, span: 50},
	Band868G3: {base: 86940, span: 25},
	Band868G4: {base: 86970, span: 30},
	Band915:   {base: 90200, step: 50},
}

// Channels returns how many channels the band offers at baud
func (b Band) Channels(baud Baudrate) uint8 {
	switch b {
	case Band433:
		if baud < Baud115200 {
			return 8
		}
		return 4
	case Band866:
		if baud < Baud115200 {
			return 10
		}
	case Band868G:
		switch {
		case baud < Baud19200:
			return 60
		case baud == Baud19200:
			return 20
		case baud == Baud38400:
			return 10
		}
	case Band868G1:
		switch {
		case baud < Baud19200:
			return 12
		case baud == Baud19200:
			return 6
		case baud == Baud38400:
			return 3
		default:
			return 1
		}
	case Band868G2:
		switch {
		case baud < Baud19200:
			return 10
		case baud == Baud19200:
			return 5
		case baud == Baud38400:
			return 2
		default:
			return 1
		}
	case Band868G3:
		if baud < Baud115200 {
			return 1
		}
	case Band868G4:
		switch {
		case baud < Baud19200:
			return 6
		case baud == Baud19200:
			return 3
		case baud == Baud38400:
			return 2
		}
	case Band915:
		if baud < Baud38400 {
			return 20
		}
	}
	return 0
}

// Config holds the radio parameters applied when a transport is opened
type Config struct {
	Baudrate Baudrate
	Band     Band
	Channel  uint8
	SyncWord uint16
	TxPower  int8 // dBm
	EnablePA bool
	LBTRSSI  int8 // dBm, 0 selects DefaultLBTRSSI
}

// DefaultConfig returns the factory radio settings
func DefaultConfig() Config {
	return Config{
		Baudrate: Baud4800,
		Band:     Band433,
		Channel:  4,
		SyncWord: 0xB56B,
		TxPower:  10,
	}
}

// Validate checks the rate, band and channel combination
func (c Config) Validate() error {
	if _, err := ValidateBaudrate(uint32(c.Baudrate)); err != nil {
		return err
	}
	if c.Band >= bandCount {
		return ErrInvalidBand
	}
	n := c.Band.Channels(c.Baudrate)
	if n == 0 {
		return fmt.Errorf("%w: %s at %d", ErrNoChannels, c.Band, c.Baudrate)
	}
	if c.Channel >= n {
		return fmt.Errorf("%w: %d of %d", ErrInvalidChannel, c.Channel, n)
	}
	return nil
}

// ChannelStep returns the channel spacing in Hz
func (c Config) ChannelStep() uint32 {
	if c.Band >= bandCount {
		return 0
	}
	p := plans[c.Band]
	if p.step != 0 {
		return p.step * 10000
	}
	n := c.Band.Channels(c.Baudrate)
	if n == 0 {
		return 0
	}
	return p.span / uint32(n) * 10000
}

// Frequency returns the centre frequency of the configured channel in Hz
func (c Config) Frequency() (uint32, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	step := c.ChannelStep()
	return plans[c.Band].base*10000 + step/2 + uint32(c.Channel)*step, nil
}
