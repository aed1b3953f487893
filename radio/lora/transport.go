package lora

import (
	"sync"
	"sync/atomic"
	"time"

	loradrv "tinygo.org/x/drivers/lora"

	"radiolink/protocol"
	"radiolink/radio"
)

// DefaultRxChunk bounds one blocking receive call
const DefaultRxChunk = 20 * time.Millisecond

const (
	opReceive uint8 = iota
	opSend
	opStandby
)

const queueDepth = 4

// Options tune the adapter to a particular transceiver
type Options struct {
	// SampleRSSI reads the channel energy. Nil skips carrier sense.
	SampleRSSI func() (int8, error)

	// PacketRSSI reports the strength of the frame just received
	PacketRSSI func() int8

	// Sleep powers the transceiver down
	Sleep func()

	// SenseFailed is told when carrier sense cannot read the channel. The
	// frame is sent anyway.
	SenseFailed func(err error)

	// RxChunk bounds each blocking receive so a window can be ended
	// between calls. Zero selects DefaultRxChunk.
	RxChunk time.Duration
}

type request struct {
	op  uint8
	gen uint32

	timeoutUS         uint32
	continueOnTimeout bool
	continueOnReceive bool

	frame        [protocol.MaxFrameSize]byte
	n            int
	lbtRSSI      int8
	lbtTimeoutUS uint32
}

// Transport implements radio.Transport on a lora.Radio. The driver's calls
// block, so a worker goroutine owns the device and receive windows are
// served as a series of short receive calls.
type Transport struct {
	dev  loradrv.Radio
	opts Options

	mu      sync.Mutex
	h       radio.Handler
	open    bool
	gen     uint32 // bumped by every window start and standby
	rx      bool   // window open and not yet completed
	sending bool
	mod     Modulation
	epoch   time.Time
	reqs    chan request
	done    chan struct{}

	stopGen atomic.Uint32

	busySends, senseErrors atomic.Uint32
}

// CarrierSense counts sends that went out without a clear channel
type CarrierSense struct {
	Busy   uint32 // channel stayed above the threshold for the whole budget
	Errors uint32 // the RSSI sampler failed
}

var _ radio.Transport = (*Transport)(nil)

// New wraps dev. The device must already be reset and detected.
func New(dev loradrv.Radio, opts Options) *Transport {
	if opts.RxChunk <= 0 {
		opts.RxChunk = DefaultRxChunk
	}
	return &Transport{dev: dev, opts: opts}
}

// CarrierSense returns the carrier sense counters
func (t *Transport) CarrierSense() CarrierSense {
	return CarrierSense{Busy: t.busySends.Load(), Errors: t.senseErrors.Load()}
}

// SampleRSSI implements radio.RSSISampler
func (t *Transport) SampleRSSI() (int8, error) {
	return t.opts.SampleRSSI()
}

// SetHandler implements radio.Transport
func (t *Transport) SetHandler(h radio.Handler) {
	t.mu.Lock()
	t.h = h
	t.mu.Unlock()
}

// Open implements radio.Transport
func (t *Transport) Open(cfg radio.Config) error {
	freq, err := cfg.Frequency()
	if err != nil {
		return err
	}
	mod, err := ModulationFor(cfg.Baudrate)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return radio.ErrBusy
	}
	t.dev.LoraConfig(mod.driverConfig(cfg, freq))
	t.mod = mod
	t.epoch = time.Now()
	t.open = true
	t.rx = false
	t.sending = false
	t.reqs = make(chan request, queueDepth)
	t.done = make(chan struct{})
	go t.worker(t.reqs, t.done)
	return nil
}

// Close implements radio.Transport. It waits for the worker to leave the
// driver.
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	t.open = false
	t.gen++
	t.rx = false
	t.sending = false
	close(t.reqs)
	done := t.done
	t.mu.Unlock()

	<-done
	return nil
}

// Standby implements radio.Transport
func (t *Transport) Standby() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return radio.ErrNotOpen
	}
	t.gen++
	t.rx = false
	select {
	case t.reqs <- request{op: opStandby, gen: t.gen}:
	default:
	}
	return nil
}

// EnableReceive implements radio.Transport
func (t *Transport) EnableReceive(timeoutUS uint32, continueOnTimeout, continueOnReceive bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return radio.ErrNotOpen
	}
	if t.rx || t.sending {
		return radio.ErrBusy
	}
	req := request{
		op:                opReceive,
		gen:               t.gen + 1,
		timeoutUS:         timeoutUS,
		continueOnTimeout: continueOnTimeout,
		continueOnReceive: continueOnReceive,
	}
	select {
	case t.reqs <- req:
	default:
		return radio.ErrBusy
	}
	t.gen++
	t.rx = true
	return nil
}

// DisableReceive implements radio.Transport. The window ends after the
// receive call in progress returns.
func (t *Transport) DisableReceive() {
	t.mu.Lock()
	if t.rx {
		t.stopGen.Store(t.gen)
	}
	t.mu.Unlock()
}

// Send implements radio.Transport
func (t *Transport) Send(frame []byte, lbtRSSI int8, lbtTimeoutUS uint32) error {
	if len(frame) > protocol.MaxFrameSize {
		return radio.ErrFrameTooLarge
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return radio.ErrNotOpen
	}
	if t.rx || t.sending {
		return radio.ErrBusy
	}
	req := request{op: opSend, n: len(frame), lbtRSSI: lbtRSSI, lbtTimeoutUS: lbtTimeoutUS}
	copy(req.frame[:], frame)
	select {
	case t.reqs <- req:
	default:
		return radio.ErrBusy
	}
	t.sending = true
	return nil
}

func (t *Transport) worker(reqs <-chan request, done chan<- struct{}) {
	defer close(done)
	for req := range reqs {
		switch req.op {
		case opReceive:
			t.receive(&req)
		case opSend:
			t.send(&req)
		case opStandby:
			if t.opts.Sleep != nil && t.current(req.gen) {
				t.opts.Sleep()
			}
		}
	}
}

// current reports whether gen is still the live window
func (t *Transport) current(gen uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open && t.gen == gen
}

func (t *Transport) now() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(time.Since(t.epoch) / time.Microsecond)
}

func chunkMS(d time.Duration) uint32 {
	ms := uint32((d + time.Millisecond - 1) / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return ms
}

// receive serves one window. The window is widened by the preamble time and
// one receive chunk to cover the LoRa framing the airtime tables leave out.
func (t *Transport) receive(req *request) {
	t.mu.Lock()
	mod := t.mod
	t.mu.Unlock()

	var deadline time.Time
	if req.timeoutUS > 0 {
		widen := time.Duration(mod.PreambleUS())*time.Microsecond + t.opts.RxChunk
		deadline = time.Now().Add(time.Duration(req.timeoutUS)*time.Microsecond + widen)
	}

	data := false
	for {
		if !t.current(req.gen) {
			return
		}
		if t.stopGen.Load() == req.gen {
			break
		}
		chunk := t.opts.RxChunk
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				break
			}
			if left < chunk {
				chunk = left
			}
		}

		pkt, err := t.dev.Rx(chunkMS(chunk))
		if !t.current(req.gen) {
			return
		}
		if err != nil || len(pkt) == 0 {
			continue
		}
		// The transceiver finishes a frame whose preamble it caught in time
		if !deadline.IsZero() && time.Now().After(deadline) && !req.continueOnTimeout {
			break
		}

		data = true
		p := radio.Packet{Timestamp: t.now(), Data: append([]byte(nil), pkt...)}
		if t.opts.PacketRSSI != nil {
			p.RSSI = t.opts.PacketRSSI()
		}
		if h := t.handler(); h != nil {
			h.MessageReceived(p)
		}
		if !req.continueOnReceive {
			break
		}
	}

	t.mu.Lock()
	if !t.open || t.gen != req.gen || !t.rx {
		t.mu.Unlock()
		return
	}
	t.rx = false
	h := t.h
	t.mu.Unlock()
	if h != nil {
		h.ReceiveCompleted(data)
	}
}

func (t *Transport) send(req *request) {
	if req.lbtTimeoutUS > 0 && t.opts.SampleRSSI != nil {
		free, err := radio.ListenBeforeTalk(t, req.lbtRSSI, req.lbtTimeoutUS, time.Sleep)
		switch {
		case err != nil:
			t.senseErrors.Add(1)
			if t.opts.SenseFailed != nil {
				t.opts.SenseFailed(err)
			}
		case !free:
			t.busySends.Add(1)
		}
	}

	t.mu.Lock()
	mod := t.mod
	t.mu.Unlock()
	timeoutMS := 2*mod.AirtimeUS(req.n)/1000 + 50
	err := t.dev.Tx(req.frame[:req.n], timeoutMS)

	t.mu.Lock()
	t.sending = false
	open := t.open
	h := t.h
	t.mu.Unlock()
	if h != nil && open {
		h.SendCompleted(err == nil)
	}
}

func (t *Transport) handler() radio.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h
}
