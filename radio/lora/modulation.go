// Package lora runs the link over a LoRa transceiver driven through
// tinygo.org/x/drivers/lora. Each supported baud rate maps to a spreading
// factor and bandwidth whose raw bit rate is at least that fast.
package lora

import (
	"errors"

	loradrv "tinygo.org/x/drivers/lora"

	"radiolink/radio"
)

// PreambleSymbols is the programmed preamble length
const PreambleSymbols = 8

const codingRate = 1 // 4/5

// ErrNoModulation is returned for rates no LoRa setting can carry
var ErrNoModulation = errors.New("lora: no modulation for baud rate")

// Modulation is one spreading factor and bandwidth pair
type Modulation struct {
	SpreadingFactor uint8
	Bandwidth       uint8 // driver bandwidth code
	BandwidthHz     uint32
}

// ModulationFor picks the modulation used for baud
func ModulationFor(baud radio.Baudrate) (Modulation, error) {
	switch baud {
	case radio.Baud4800:
		return Modulation{loradrv.SpreadingFactor7, loradrv.Bandwidth_125_0, 125000}, nil
	case radio.Baud9600:
		return Modulation{loradrv.SpreadingFactor7, loradrv.Bandwidth_250_0, 250000}, nil
	case radio.Baud19200:
		return Modulation{loradrv.SpreadingFactor7, loradrv.Bandwidth_500_0, 500000}, nil
	}
	return Modulation{}, ErrNoModulation
}

// SymbolUS returns the symbol time in microseconds
func (m Modulation) SymbolUS() uint32 {
	if m.BandwidthHz == 0 {
		return 0
	}
	return uint32((uint64(1) << m.SpreadingFactor) * 1000000 / uint64(m.BandwidthHz))
}

func (m Modulation) lowDataRate() bool {
	return m.SymbolUS() >= 16000
}

// PreambleUS returns the preamble and sync time
func (m Modulation) PreambleUS() uint32 {
	return (PreambleSymbols*4 + 17) * m.SymbolUS() / 4
}

// AirtimeUS returns the on-air time of an n-byte packet with explicit
// header, CRC and coding rate 4/5
func (m Modulation) AirtimeUS(n int) uint32 {
	sf := int(m.SpreadingFactor)
	de := 0
	if m.lowDataRate() {
		de = 1
	}
	symbols := 8
	num := 8*n - 4*sf + 28 + 16
	if den := 4 * (sf - 2*de); num > 0 && den > 0 {
		symbols += (num + den - 1) / den * (codingRate + 4)
	}
	return m.PreambleUS() + uint32(symbols)*m.SymbolUS()
}

// driverConfig builds the transceiver settings for cfg
func (m Modulation) driverConfig(cfg radio.Config, freq uint32) loradrv.Config {
	ldr := uint8(loradrv.LowDataRateOptimizeOff)
	if m.lowDataRate() {
		ldr = loradrv.LowDataRateOptimizeOn
	}
	return loradrv.Config{
		Freq:           freq,
		Cr:             loradrv.CodingRate4_5,
		Sf:             m.SpreadingFactor,
		Bw:             m.Bandwidth,
		Ldr:            ldr,
		Preamble:       PreambleSymbols,
		SyncWord:       cfg.SyncWord,
		HeaderType:     loradrv.HeaderExplicit,
		Crc:            loradrv.CRCOn,
		Iq:             loradrv.IQStandard,
		LoraTxPowerDBm: cfg.TxPower,
	}
}
