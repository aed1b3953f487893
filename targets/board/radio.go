//go:build rp2040 || rp2350

package board

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/sx127x"

	"radiolink/radio"
	"radiolink/radio/lora"
)

// SX1276 wiring on SPI1
const (
	RadioSCK  = machine.GPIO10
	RadioSDO  = machine.GPIO11
	RadioSDI  = machine.GPIO12
	RadioCS   = machine.GPIO13
	RadioRST  = machine.GPIO14
	RadioDIO0 = machine.GPIO15
	RadioDIO1 = machine.GPIO16
)

// SX127x LoRa mode registers used outside the driver
const (
	regOpMode    = 0x01
	regPktRSSI   = 0x1A
	regRSSIValue = 0x1B

	opModeLoRaSleep = 0x80

	// RSSI offsets of the low and high frequency ports
	rssiOffsetLF = -164
	rssiOffsetHF = -157
)

var ErrNoRadio = errors.New("board: sx127x not detected")

// NewRadio brings up the transceiver
func NewRadio() (*sx127x.Device, error) {
	err := machine.SPI1.Configure(machine.SPIConfig{
		Frequency: 8000000,
		SCK:       RadioSCK,
		SDO:       RadioSDO,
		SDI:       RadioSDI,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}

	dev := sx127x.New(machine.SPI1, RadioRST)
	if err := dev.SetRadioController(sx127x.NewRadioControl(RadioCS, RadioDIO0, RadioDIO1)); err != nil {
		return nil, err
	}
	dev.Reset()
	if !dev.DetectDevice() {
		return nil, ErrNoRadio
	}
	return dev, nil
}

func rssi(raw uint8, band radio.Band) int8 {
	off := rssiOffsetHF
	if band == radio.Band433 {
		off = rssiOffsetLF
	}
	return int8(off + int(raw))
}

// RadioOptions binds the register level helpers of dev for band
func RadioOptions(dev *sx127x.Device, band radio.Band) lora.Options {
	return lora.Options{
		SampleRSSI: func() (int8, error) {
			return rssi(dev.ReadRegister(regRSSIValue), band), nil
		},
		PacketRSSI: func() int8 {
			return rssi(dev.ReadRegister(regPktRSSI), band)
		},
		Sleep: func() {
			dev.WriteRegister(regOpMode, opModeLoRaSleep)
		},
	}
}
