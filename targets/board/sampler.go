//go:build rp2040 || rp2350

package board

import (
	"device/rp"
	"machine"
)

const (
	adcRefMilliVolt = 3300

	// the battery reaches ADC0 through a 1:2 divider
	batteryDivider = 2

	tempChannel = 4
)

// Sampler measures the battery on ADC0 and the die temperature. It
// implements sensor.Sampler.
type Sampler struct {
	battery machine.ADC
	on      bool
}

// NewSampler configures the ADC pins
func NewSampler() *Sampler {
	machine.InitADC()
	s := &Sampler{battery: machine.ADC{Pin: machine.ADC0}}
	s.battery.Configure(machine.ADCConfig{})
	return s
}

// Enable powers the temperature sensor
func (s *Sampler) Enable() {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	s.on = true
}

// Disable turns the temperature sensor off again
func (s *Sampler) Disable() {
	rp.ADC.CS.ClearBits(rp.ADC_CS_TS_EN)
	s.on = false
}

// Voltage returns the battery voltage in millivolts
func (s *Sampler) Voltage() (uint32, bool) {
	if !s.on {
		return 0, false
	}
	raw := uint32(s.battery.Get()) // scaled to 16 bits
	return raw * adcRefMilliVolt * batteryDivider / 65536, true
}

// Temperature returns the die temperature in whole degrees Celsius
func (s *Sampler) Temperature() (int32, bool) {
	if !s.on {
		return 0, false
	}
	mv := int32(rawInternalTemp()) * adcRefMilliVolt / 4096
	// 0.706 V at 27 C, -1.721 mV per degree
	return 27 - (mv-706)*1000/1721, true
}

// rawInternalTemp returns the 12-bit conversion of ADC channel 4
func rawInternalTemp() uint16 {
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}
