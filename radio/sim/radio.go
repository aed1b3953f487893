package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"radiolink/protocol"
	"radiolink/radio"
)

type channelKey struct {
	freq uint32
	sync uint16
	baud radio.Baudrate
}

type window struct {
	timer             *time.Timer
	continueOnTimeout bool
	continueOnReceive bool
	pending           int
	data              bool
	expired           bool
}

// Radio is one transceiver on a Medium. It implements radio.Transport.
type Radio struct {
	m    *Medium
	name string
	rssi int8

	// guarded by m.mu
	key  channelKey
	open bool

	mu      sync.Mutex
	h       radio.Handler
	rx      *window
	sending bool
	standby bool
}

var _ radio.Transport = (*Radio)(nil)

// Name returns the label given at creation
func (r *Radio) Name() string {
	return r.name
}

func (r *Radio) hears(other *Radio) bool {
	return r.open && other.open && r.key == other.key
}

func (r *Radio) baud() radio.Baudrate {
	return r.key.baud
}

func (r *Radio) isOpen() bool {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.open
}

// SetHandler implements radio.Transport
func (r *Radio) SetHandler(h radio.Handler) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

// Open implements radio.Transport
func (r *Radio) Open(cfg radio.Config) error {
	freq, err := cfg.Frequency()
	if err != nil {
		return err
	}
	r.m.mu.Lock()
	r.key = channelKey{freq: freq, sync: cfg.SyncWord, baud: cfg.Baudrate}
	r.open = true
	r.m.mu.Unlock()

	r.m.log.Debug("open",
		zap.String("radio", r.name),
		zap.Uint32("freq", freq),
		zap.Uint32("baud", uint32(cfg.Baudrate)))
	return nil
}

// Close implements radio.Transport
func (r *Radio) Close() error {
	r.m.mu.Lock()
	r.open = false
	r.m.mu.Unlock()

	r.mu.Lock()
	r.dropWindow()
	r.standby = false
	r.mu.Unlock()
	return nil
}

// Standby implements radio.Transport
func (r *Radio) Standby() error {
	if !r.isOpen() {
		return radio.ErrNotOpen
	}
	r.mu.Lock()
	r.dropWindow()
	r.standby = true
	r.mu.Unlock()
	return nil
}

// Standing reports whether the radio is powered down
func (r *Radio) Standing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.standby
}

func (r *Radio) dropWindow() {
	if r.rx != nil && r.rx.timer != nil {
		r.rx.timer.Stop()
	}
	r.rx = nil
}

// EnableReceive implements radio.Transport
func (r *Radio) EnableReceive(timeoutUS uint32, continueOnTimeout, continueOnReceive bool) error {
	if !r.isOpen() {
		return radio.ErrNotOpen
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rx != nil || r.sending {
		return radio.ErrBusy
	}
	w := &window{continueOnTimeout: continueOnTimeout, continueOnReceive: continueOnReceive}
	if timeoutUS > 0 {
		w.timer = time.AfterFunc(time.Duration(timeoutUS)*time.Microsecond, func() { r.deadline(w) })
	}
	r.rx = w
	r.standby = false
	return nil
}

// DisableReceive implements radio.Transport
func (r *Radio) DisableReceive() {
	r.mu.Lock()
	w := r.rx
	if w == nil {
		r.mu.Unlock()
		return
	}
	r.dropWindow()
	h := r.h
	r.mu.Unlock()

	if h != nil {
		h.ReceiveCompleted(w.data)
	}
}

func (r *Radio) deadline(w *window) {
	r.mu.Lock()
	if r.rx != w {
		r.mu.Unlock()
		return
	}
	w.expired = true
	if w.continueOnTimeout && w.pending > 0 {
		r.mu.Unlock()
		return
	}
	r.rx = nil
	h := r.h
	r.mu.Unlock()

	if h != nil {
		h.ReceiveCompleted(w.data)
	}
}

// listen registers a frame starting now. Called with m.mu held.
func (r *Radio) listen() *window {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rx == nil || r.sending || r.standby {
		return nil
	}
	r.rx.pending++
	return r.rx
}

// receive ends a frame that started while w was open
func (r *Radio) receive(w *window, frame []byte, rssi int8, ts uint32, ok bool) bool {
	r.mu.Lock()
	if r.rx != w {
		r.mu.Unlock()
		return false
	}
	w.pending--
	end := false
	if ok {
		w.data = true
		end = !w.continueOnReceive
	}
	if w.expired && w.pending == 0 {
		end = true
	}
	if end {
		r.dropWindow()
	}
	h := r.h
	r.mu.Unlock()

	if h == nil {
		return ok
	}
	if ok {
		h.MessageReceived(radio.Packet{RSSI: rssi, Timestamp: ts, Data: append([]byte(nil), frame...)})
	}
	if end {
		h.ReceiveCompleted(w.data)
	}
	return ok
}

// SampleRSSI implements radio.RSSISampler against the medium energy
func (r *Radio) SampleRSSI() (int8, error) {
	return r.m.energy(r), nil
}

// Send implements radio.Transport
func (r *Radio) Send(frame []byte, lbtRSSI int8, lbtTimeoutUS uint32) error {
	if len(frame) > protocol.MaxFrameSize {
		return radio.ErrFrameTooLarge
	}
	if !r.isOpen() {
		return radio.ErrNotOpen
	}
	r.m.mu.Lock()
	turnaround := r.m.turnaround
	r.m.mu.Unlock()

	r.mu.Lock()
	if r.sending || r.rx != nil {
		r.mu.Unlock()
		return radio.ErrBusy
	}
	r.sending = true
	r.standby = false
	r.mu.Unlock()

	data := append([]byte(nil), frame...)
	go func() {
		free, err := radio.ListenBeforeTalk(r, lbtRSSI, lbtTimeoutUS, time.Sleep)
		if err == nil && !free {
			r.m.log.Debug("channel busy, sending anyway", zap.String("radio", r.name))
		}
		if turnaround > 0 {
			time.Sleep(turnaround)
		}
		r.m.transmit(r, data)
	}()
	return nil
}

func (r *Radio) sent() {
	open := r.isOpen()
	r.mu.Lock()
	r.sending = false
	h := r.h
	r.mu.Unlock()
	if h != nil && open {
		h.SendCompleted(true)
	}
}
