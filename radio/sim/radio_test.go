package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"radiolink/radio"
)

const wait = 2 * time.Second

type recorder struct {
	mu       sync.Mutex
	packets  []radio.Packet
	sent     []bool
	received []bool
	events   chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 64)}
}

func (r *recorder) MessageReceived(p radio.Packet) {
	r.mu.Lock()
	r.packets = append(r.packets, p)
	r.mu.Unlock()
	r.events <- "message"
}

func (r *recorder) SendCompleted(ok bool) {
	r.mu.Lock()
	r.sent = append(r.sent, ok)
	r.mu.Unlock()
	r.events <- "sent"
}

func (r *recorder) ReceiveCompleted(data bool) {
	r.mu.Lock()
	r.received = append(r.received, data)
	r.mu.Unlock()
	r.events <- "rxdone"
}

func (r *recorder) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.events:
		require.Equal(t, want, got)
	case <-time.After(wait):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func (r *recorder) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-r.events:
		t.Fatalf("unexpected event %s", got)
	case <-time.After(d):
	}
}

func fastConfig() radio.Config {
	cfg := radio.DefaultConfig()
	cfg.Baudrate = radio.Baud115200
	cfg.Channel = 1
	return cfg
}

func pair(t *testing.T) (*Medium, *Radio, *recorder, *Radio, *recorder) {
	t.Helper()
	m := NewMedium(zaptest.NewLogger(t))
	a, b := m.NewRadio("a", -60), m.NewRadio("b", -65)
	ra, rb := newRecorder(), newRecorder()
	a.SetHandler(ra)
	b.SetHandler(rb)
	require.NoError(t, a.Open(fastConfig()))
	require.NoError(t, b.Open(fastConfig()))
	return m, a, ra, b, rb
}

func TestDelivery(t *testing.T) {
	m, a, ra, b, rb := pair(t)
	require.NoError(t, b.EnableReceive(0, true, true))

	frame := []byte{11, 2, 1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0xAA}
	require.NoError(t, a.Send(frame, 0, 0))
	frame[11] = 0 // the transport keeps its own copy

	rb.expect(t, "message")
	ra.expect(t, "sent")

	rb.mu.Lock()
	require.Len(t, rb.packets, 1)
	assert.Equal(t, byte(0xAA), rb.packets[0].Data[11])
	assert.Equal(t, int8(-60), rb.packets[0].RSSI)
	rb.mu.Unlock()

	// continueOnReceive keeps listening until told otherwise
	rb.quiet(t, 20*time.Millisecond)
	b.DisableReceive()
	rb.expect(t, "rxdone")
	assert.Equal(t, []bool{true}, rb.received)

	b.DisableReceive()
	rb.quiet(t, 10*time.Millisecond)
	assert.Equal(t, uint64(1), m.Stats().Delivered)
}

func TestStopOnReceive(t *testing.T) {
	_, a, ra, b, rb := pair(t)
	require.NoError(t, b.EnableReceive(0, true, false))
	require.NoError(t, a.Send([]byte{1, 2, 3}, 0, 0))

	rb.expect(t, "message")
	rb.expect(t, "rxdone")
	ra.expect(t, "sent")
	assert.Equal(t, []bool{true}, rb.received)
}

func TestWindowTimeoutOnce(t *testing.T) {
	_, _, _, b, rb := pair(t)
	require.NoError(t, b.EnableReceive(2000, false, false))
	assert.ErrorIs(t, b.EnableReceive(2000, false, false), radio.ErrBusy)

	rb.expect(t, "rxdone")
	assert.Equal(t, []bool{false}, rb.received)

	b.DisableReceive()
	rb.quiet(t, 10*time.Millisecond)
}

func TestDisableReceiveOnce(t *testing.T) {
	_, _, _, b, rb := pair(t)
	require.NoError(t, b.EnableReceive(50000, true, false))
	b.DisableReceive()
	b.DisableReceive()
	rb.expect(t, "rxdone")
	rb.quiet(t, 80*time.Millisecond)
}

func TestNotListening(t *testing.T) {
	_, a, ra, _, rb := pair(t)
	require.NoError(t, a.Send([]byte{1}, 0, 0))
	ra.expect(t, "sent")
	rb.quiet(t, 10*time.Millisecond)
}

func TestOtherChannelNotHeard(t *testing.T) {
	_, a, ra, b, rb := pair(t)
	cfg := fastConfig()
	cfg.Channel = 2
	require.NoError(t, b.Open(cfg))
	require.NoError(t, b.EnableReceive(0, true, true))

	require.NoError(t, a.Send([]byte{1}, 0, 0))
	ra.expect(t, "sent")
	rb.quiet(t, 10*time.Millisecond)
}

func TestTimeoutDuringReception(t *testing.T) {
	tests := []struct {
		name   string
		finish bool
		want   []string
	}{
		{"finish frame", true, []string{"message", "rxdone"}},
		{"cut off", false, []string{"rxdone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, a, ra, b, rb := pair(t)
			m.SetTurnaround(0)
			require.NoError(t, b.EnableReceive(2000, tt.finish, false))
			// 61 bytes at 115200 take about 5 ms, past the 2 ms window
			require.NoError(t, a.Send(make([]byte, 61), 0, 0))
			for _, ev := range tt.want {
				rb.expect(t, ev)
			}
			ra.expect(t, "sent")
			rb.quiet(t, 10*time.Millisecond)
		})
	}
}

func TestCollision(t *testing.T) {
	m := NewMedium(zaptest.NewLogger(t))
	m.SetTurnaround(0)
	a, b, c := m.NewRadio("a", -60), m.NewRadio("b", -60), m.NewRadio("c", -60)
	ra, rb, rc := newRecorder(), newRecorder(), newRecorder()
	a.SetHandler(ra)
	b.SetHandler(rb)
	c.SetHandler(rc)
	for _, r := range []*Radio{a, b, c} {
		require.NoError(t, r.Open(fastConfig()))
	}
	require.NoError(t, c.EnableReceive(0, true, true))

	require.NoError(t, a.Send(make([]byte, 61), 0, 0))
	require.NoError(t, b.Send(make([]byte, 61), 0, 0))
	ra.expect(t, "sent")
	rb.expect(t, "sent")
	rc.quiet(t, 10*time.Millisecond)

	st := m.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Collisions)
	assert.Equal(t, uint64(2), st.Lost)
}

func TestCarrierSense(t *testing.T) {
	m, a, ra, b, _ := pair(t)
	m.SetTurnaround(0)

	rssi, err := b.SampleRSSI()
	require.NoError(t, err)
	assert.Equal(t, DefaultNoiseFloor, rssi)

	require.NoError(t, a.Send(make([]byte, 61), 0, 0))
	assert.Eventually(t, func() bool {
		v, _ := b.SampleRSSI()
		return v == -60
	}, wait, 100*time.Microsecond)

	ra.expect(t, "sent")
	rssi, _ = b.SampleRSSI()
	assert.Equal(t, DefaultNoiseFloor, rssi)
}

func TestLoss(t *testing.T) {
	m, a, ra, b, rb := pair(t)
	m.SetLoss(func(from, to string, frame []byte) bool {
		return from == "a" && to == "b" && frame[0] == 0xDE
	})
	require.NoError(t, b.EnableReceive(0, true, true))

	require.NoError(t, a.Send([]byte{0xDE}, 0, 0))
	ra.expect(t, "sent")
	require.NoError(t, a.Send([]byte{0x01}, 0, 0))
	rb.expect(t, "message")
	ra.expect(t, "sent")

	assert.Equal(t, uint64(1), m.Stats().Lost)
}

func TestErrors(t *testing.T) {
	m := NewMedium(nil)
	r := m.NewRadio("x", -50)
	r.SetHandler(newRecorder())

	assert.ErrorIs(t, r.Send([]byte{1}, 0, 0), radio.ErrNotOpen)
	assert.ErrorIs(t, r.EnableReceive(0, true, true), radio.ErrNotOpen)
	assert.ErrorIs(t, r.Standby(), radio.ErrNotOpen)

	bad := fastConfig()
	bad.Channel = 99
	assert.ErrorIs(t, r.Open(bad), radio.ErrInvalidChannel)

	require.NoError(t, r.Open(fastConfig()))
	assert.ErrorIs(t, r.Send(make([]byte, 62), 0, 0), radio.ErrFrameTooLarge)

	require.NoError(t, r.EnableReceive(0, true, true))
	assert.ErrorIs(t, r.Send([]byte{1}, 0, 0), radio.ErrBusy)
}

func TestStandbyDeafens(t *testing.T) {
	_, a, ra, b, rb := pair(t)
	require.NoError(t, b.EnableReceive(0, true, true))
	require.NoError(t, b.Standby())
	assert.True(t, b.Standing())

	require.NoError(t, a.Send([]byte{1}, 0, 0))
	ra.expect(t, "sent")
	rb.quiet(t, 10*time.Millisecond)

	require.NoError(t, b.EnableReceive(0, true, true))
	assert.False(t, b.Standing())
}
