package sensor

import (
	"encoding/binary"
	"errors"
)

const (
	// BatterySensorID tags battery monitor records
	BatterySensorID = 1

	// BatteryReadingSize is the encoded length of a BatteryReading
	BatteryReadingSize = 12
)

var ErrShortReading = errors.New("sensor: battery reading too short")

// BatteryReading is one battery monitor sample
type BatteryReading struct {
	Timestamp    uint32 // seconds since boot
	MilliVolts   uint32
	TemperatureC int32
	Forced       bool // requested by the push button, not encoded
}

// Encode writes the 12-byte little-endian form into b
func (r BatteryReading) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], r.Timestamp)
	binary.LittleEndian.PutUint32(b[4:], r.MilliVolts)
	binary.LittleEndian.PutUint32(b[8:], uint32(r.TemperatureC))
}

// Record wraps the reading for the sensor buffer
func (r BatteryReading) Record() Record {
	data := make([]byte, BatteryReadingSize)
	r.Encode(data)
	return Record{SensorID: BatterySensorID, Data: data}
}

// DecodeBatteryReading parses the 12-byte form
func DecodeBatteryReading(b []byte) (BatteryReading, error) {
	if len(b) < BatteryReadingSize {
		return BatteryReading{}, ErrShortReading
	}
	return BatteryReading{
		Timestamp:    binary.LittleEndian.Uint32(b[0:]),
		MilliVolts:   binary.LittleEndian.Uint32(b[4:]),
		TemperatureC: int32(binary.LittleEndian.Uint32(b[8:])),
	}, nil
}

// Sampler is the battery and temperature measurement hardware. Results
// become ready some time after Enable.
type Sampler interface {
	Enable()
	Disable()
	Voltage() (mV uint32, ready bool)
	Temperature() (celsius int32, ready bool)
}

type monitorState uint8

const (
	monitorIdle monitorState = iota
	monitorRequested
	monitorSampling
)

// BatteryMonitor runs one measurement at a time on a Sampler
type BatteryMonitor struct {
	sampler   Sampler
	uptime    func() uint32
	state     monitorState
	reading   BatteryReading
	haveVolt  bool
	haveTemp  bool
	completed func(BatteryReading)
}

// NewBatteryMonitor creates a monitor. uptime returns seconds since boot.
func NewBatteryMonitor(s Sampler, uptime func() uint32) *BatteryMonitor {
	return &BatteryMonitor{sampler: s, uptime: uptime}
}

// OnReading registers the completion callback
func (m *BatteryMonitor) OnReading(cb func(BatteryReading)) {
	m.completed = cb
}

// Read requests a measurement. It returns false when one is already running.
func (m *BatteryMonitor) Read(forced bool) bool {
	if m.state != monitorIdle {
		return false
	}
	m.state = monitorRequested
	m.reading = BatteryReading{Forced: forced}
	m.haveVolt, m.haveTemp = false, false
	return true
}

// Process advances a running measurement
func (m *BatteryMonitor) Process() {
	switch m.state {
	case monitorRequested:
		m.sampler.Enable()
		m.state = monitorSampling
	case monitorSampling:
		if !m.haveTemp {
			m.reading.TemperatureC, m.haveTemp = m.sampler.Temperature()
		}
		if !m.haveVolt {
			m.reading.MilliVolts, m.haveVolt = m.sampler.Voltage()
		}
		if m.haveVolt && m.haveTemp {
			m.sampler.Disable()
			m.reading.Timestamp = m.uptime()
			m.state = monitorIdle
			if m.completed != nil {
				m.completed(m.reading)
			}
		}
	}
}

// PreventLowPower reports whether a measurement is in progress
func (m *BatteryMonitor) PreventLowPower() bool {
	return m.state != monitorIdle
}

// Last returns the latest completed reading
func (m *BatteryMonitor) Last() BatteryReading {
	if m.state != monitorIdle {
		return BatteryReading{}
	}
	return m.reading
}
