package gateway

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"radiolink/app/tag"
	"radiolink/core"
	"radiolink/protocol"
	"radiolink/radio"
	"radiolink/radio/sim"
	"radiolink/sensor"
	"radiolink/settings"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type rig struct {
	gw      *Gateway
	medium  *sim.Medium
	console *syncBuffer
	metrics *Metrics
}

func newRig(t *testing.T) *rig {
	t.Helper()
	medium := sim.NewMedium(zaptest.NewLogger(t))
	engine := core.New(medium.NewRadio("gateway", -50), core.Config{
		Role:  core.RoleCoordinator,
		Radio: radio.DefaultConfig(),
	})
	console := &syncBuffer{}
	metrics := NewMetrics(prometheus.NewRegistry())
	gw := New(Config{
		Engine:   engine,
		Queue:    NewQueue(1000, 10, 8),
		Registry: openRegistry(t),
		Metrics:  metrics,
		Console:  console,
		Log:      zaptest.NewLogger(t),
	})
	return &rig{gw: gw, medium: medium, console: console, metrics: metrics}
}

func batteryPayload(r sensor.BatteryReading) []byte {
	b := make([]byte, sensor.BatteryReadingSize)
	r.Encode(b)
	return b
}

func TestDataReceivedRecordsNode(t *testing.T) {
	r := newRig(t)
	msg := protocol.Data{
		Header:  protocol.Header{Source: 12},
		Payload: batteryPayload(sensor.BatteryReading{Timestamp: 30, MilliVolts: 3100, TemperatureC: 22}),
	}
	r.gw.dataReceived(msg, -64)
	r.gw.dataReceived(protocol.Data{Header: protocol.Header{Source: 12}, Payload: []byte{1}}, -66)

	out := r.console.String()
	assert.Contains(t, out, "[-64 dBm] Sensor 12: Timestamp - 30, Voltage - 3.100 V, Temperature - 22 C\n")
	assert.Contains(t, out, "[-66 dBm] Sensor 12: Data - 01\n")

	n, err := r.gw.Registry().Get(12)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n.Frames)
	assert.Equal(t, int8(-66), n.RSSI)
	require.NotNil(t, n.Battery)
	assert.Equal(t, uint32(3100), n.Battery.MilliVolts)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.FramesReceived.WithLabelValues("data")))
	assert.Equal(t, -66.0, testutil.ToFloat64(r.metrics.NodeRSSI.WithLabelValues("12")))
}

func TestCommandReceivedRecordsRegister(t *testing.T) {
	r := newRig(t)
	r.gw.commandReceived(protocol.Command{
		Header:    protocol.Header{Source: 5},
		Direction: protocol.DirResponse,
		Code:      protocol.CmdGetRegister,
		Params:    []byte{1, 0, 60, 0, 0, 0, 1},
	}, -70)
	// requests from leaves are not for the gateway
	r.gw.commandReceived(protocol.Command{
		Header:    protocol.Header{Source: 6},
		Direction: protocol.DirRequest,
		Code:      protocol.CmdGetRegister,
		Params:    []byte{1, 0},
	}, -70)

	assert.Equal(t, "[-70 dBm] Sensor 5: Get register (1) response - OK, Value - 60\n", r.console.String())
	n, err := r.gw.Registry().Get(5)
	require.NoError(t, err)
	assert.Equal(t, Register{Value: 60, OK: true, UpdatedAt: n.Registers[1].UpdatedAt}, n.Registers[1])

	_, err = r.gw.Registry().Get(6)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestReadConsole(t *testing.T) {
	r := newRig(t)
	input := strings.Join([]string{
		"GETREG:77,1",
		"noise",
		"SETREG:77,1",
		"SETREG:77,1,10",
	}, "\n")

	require.NoError(t, r.gw.ReadConsole(context.Background(), strings.NewReader(input)))
	assert.Equal(t, []Request{GetRegister(77, 1), SetRegister(77, 1, 10)}, r.gw.Queue().Pending())
	assert.Contains(t, r.console.String(), "ERROR: gateway: malformed command arguments")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.CommandsQueued))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.QueueDepth))
}

func TestSubmitQueueFull(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 8; i++ {
		require.NoError(t, r.gw.Submit(GetRegister(1, uint16(i))))
	}
	assert.ErrorIs(t, r.gw.Submit(GetRegister(1, 9)), ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.CommandsDropped.WithLabelValues("queue_full")))
}

type steadySampler struct{ on bool }

func (s *steadySampler) Enable()                    { s.on = true }
func (s *steadySampler) Disable()                   { s.on = false }
func (s *steadySampler) Voltage() (uint32, bool)    { return 2980, s.on }
func (s *steadySampler) Temperature() (int32, bool) { return 19, s.on }

func TestGatewayWithTag(t *testing.T) {
	r := newRig(t)
	start := time.Now()
	clock := func() uint32 { return uint32(time.Since(start) / time.Millisecond) }

	leaf := core.New(r.medium.NewRadio("tag", -70), core.Config{Role: core.RoleLeaf, ID: 77, Radio: radio.DefaultConfig()})
	st := settings.Default()
	st.ReadoutIntervalSec = 1
	store, err := settings.NewStore(settings.NewMemFlash(4096, 1024), 0)
	require.NoError(t, err)
	unit := tag.New(tag.Config{
		Link:     leaf,
		Monitor:  sensor.NewBatteryMonitor(&steadySampler{}, func() uint32 { return clock() / 1000 }),
		Store:    store,
		Settings: st,
		Clock:    clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.gw.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if _, err := unit.Step(); err != nil {
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.NoError(t, r.gw.Submit(SetRegister(77, tag.RegReadoutInterval, 5)))

	require.Eventually(t, func() bool {
		return strings.Contains(r.console.String(), "Sensor 77: Set register (1) response - OK")
	}, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(r.console.String(), "Sensor 77: Timestamp - ")
	}, 10*time.Second, 10*time.Millisecond)

	n, err := r.gw.Registry().Get(77)
	require.NoError(t, err)
	assert.True(t, n.Registers[tag.RegReadoutInterval].OK)
	assert.Equal(t, 0, r.gw.Queue().Len())
	assert.Greater(t, testutil.ToFloat64(r.metrics.Transitions), 0.0)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), saved.ReadoutIntervalSec)
}
