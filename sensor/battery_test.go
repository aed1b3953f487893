package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	enabled bool
	enables int
	polls   int
	readyAt int
	mv      uint32
	tempC   int32
}

func (f *fakeSampler) Enable()  { f.enabled = true; f.enables++; f.polls = 0 }
func (f *fakeSampler) Disable() { f.enabled = false }

func (f *fakeSampler) Voltage() (uint32, bool) {
	f.polls++
	return f.mv, f.enabled && f.polls >= f.readyAt
}

func (f *fakeSampler) Temperature() (int32, bool) {
	return f.tempC, f.enabled
}

func TestBatteryReadingEncoding(t *testing.T) {
	r := BatteryReading{Timestamp: 0x01020304, MilliVolts: 3300, TemperatureC: -5}
	rec := r.Record()
	assert.Equal(t, uint8(BatterySensorID), rec.SensorID)
	assert.Equal(t, []byte{
		0x04, 0x03, 0x02, 0x01,
		0xE4, 0x0C, 0x00, 0x00,
		0xFB, 0xFF, 0xFF, 0xFF,
	}, rec.Data)

	got, err := DecodeBatteryReading(rec.Data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = DecodeBatteryReading(rec.Data[:11])
	assert.ErrorIs(t, err, ErrShortReading)
}

func TestBatteryMonitor(t *testing.T) {
	s := &fakeSampler{readyAt: 3, mv: 3012, tempC: 24}
	now := uint32(100)
	m := NewBatteryMonitor(s, func() uint32 { return now })

	var got []BatteryReading
	m.OnReading(func(r BatteryReading) { got = append(got, r) })

	assert.False(t, m.PreventLowPower())
	require.True(t, m.Read(true))
	assert.False(t, m.Read(false), "one measurement at a time")
	assert.True(t, m.PreventLowPower())

	m.Process() // enable
	assert.True(t, s.enabled)
	m.Process()
	m.Process()
	assert.Empty(t, got)
	now = 101
	m.Process()

	require.Len(t, got, 1)
	assert.Equal(t, BatteryReading{Timestamp: 101, MilliVolts: 3012, TemperatureC: 24, Forced: true}, got[0])
	assert.False(t, s.enabled, "sampler is powered down after a reading")
	assert.False(t, m.PreventLowPower())
	assert.Equal(t, got[0], m.Last())

	m.Process()
	assert.Len(t, got, 1)
	assert.Equal(t, 1, s.enables)
}
