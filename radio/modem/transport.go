//go:build !tinygo

package modem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"radiolink/protocol"
	"radiolink/radio"
)

// ErrClosed is returned once the link to the modem has been shut down
var ErrClosed = errors.New("modem: transport closed")

// Stats counts link traffic
type Stats struct {
	Commands      uint32
	Notifications uint32
	Dropped       uint32
	DecodeErrors  uint32
}

// Transport implements radio.Transport against a radio modem on a serial
// port. Calls write one command and return; completions arrive from the
// reader goroutine.
type Transport struct {
	port io.ReadWriteCloser
	log  *zap.Logger
	dec  *Decoder

	writeMu sync.Mutex
	out     protocol.ScratchOutput

	mu     sync.Mutex
	h      radio.Handler
	open   bool
	closed bool

	commands      atomic.Uint32
	notifications atomic.Uint32
	dropped       atomic.Uint32
	decodeErrors  atomic.Uint32

	stop chan struct{}
	done chan struct{}
}

var _ radio.Transport = (*Transport)(nil)

// NewTransport starts reading notifications from port. host/serial.Port
// satisfies the port interface.
func NewTransport(port io.ReadWriteCloser, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transport{
		port: port,
		log:  log.Named("modem"),
		dec:  NewDecoder(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Stats returns a snapshot of the counters
func (t *Transport) Stats() Stats {
	return Stats{
		Commands:      t.commands.Load(),
		Notifications: t.notifications.Load(),
		Dropped:       t.dropped.Load(),
		DecodeErrors:  t.decodeErrors.Load(),
	}
}

// SetHandler implements radio.Transport
func (t *Transport) SetHandler(h radio.Handler) {
	t.mu.Lock()
	t.h = h
	t.mu.Unlock()
}

// Open implements radio.Transport
func (t *Transport) Open(cfg radio.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := t.command(CmdOpen, func(out protocol.OutputBuffer) { putConfig(out, cfg) }); err != nil {
		return err
	}
	t.mu.Lock()
	t.open = !t.closed
	t.mu.Unlock()

	t.log.Info("modem opened",
		zap.Uint32("baud", uint32(cfg.Baudrate)),
		zap.Stringer("band", cfg.Band),
		zap.Uint8("channel", cfg.Channel))
	return nil
}

// Close implements radio.Transport. It also releases the serial port, so the
// transport cannot be opened again.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	wasOpen := t.open
	t.open = false
	t.closed = true
	t.mu.Unlock()

	if wasOpen {
		if err := t.command(CmdClose, nil); err != nil {
			t.log.Warn("close command failed", zap.Error(err))
		}
	}
	close(t.stop)
	err := t.port.Close()
	<-t.done
	return err
}

func (t *Transport) isOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Standby implements radio.Transport
func (t *Transport) Standby() error {
	if !t.isOpen() {
		return radio.ErrNotOpen
	}
	return t.command(CmdStandby, nil)
}

// EnableReceive implements radio.Transport
func (t *Transport) EnableReceive(timeoutUS uint32, continueOnTimeout, continueOnReceive bool) error {
	if !t.isOpen() {
		return radio.ErrNotOpen
	}
	r := rxOn{timeoutUS: timeoutUS, continueOnTimeout: continueOnTimeout, continueOnReceive: continueOnReceive}
	return t.command(CmdRxOn, func(out protocol.OutputBuffer) { putRxOn(out, r) })
}

// DisableReceive implements radio.Transport
func (t *Transport) DisableReceive() {
	if !t.isOpen() {
		return
	}
	if err := t.command(CmdRxOff, nil); err != nil {
		t.log.Warn("receive off failed", zap.Error(err))
	}
}

// Send implements radio.Transport
func (t *Transport) Send(frame []byte, lbtRSSI int8, lbtTimeoutUS uint32) error {
	if len(frame) > protocol.MaxFrameSize {
		return radio.ErrFrameTooLarge
	}
	if !t.isOpen() {
		return radio.ErrNotOpen
	}
	p := tx{lbtRSSI: lbtRSSI, lbtTimeoutUS: lbtTimeoutUS, frame: frame}
	return t.command(CmdTx, func(out protocol.OutputBuffer) { putTx(out, p) })
}

// command encodes and writes one message
func (t *Transport) command(cmd uint8, fn func(out protocol.OutputBuffer)) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	msg, err := EncodeMessage(&t.out, cmd, fn)
	if err != nil {
		return err
	}
	n, err := t.port.Write(msg)
	if err != nil {
		return fmt.Errorf("modem: write: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("modem: incomplete write: %d/%d bytes", n, len(msg))
	}
	t.commands.Add(1)
	return nil
}

// readLoop feeds the decoder until the port is closed
func (t *Transport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 128)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.dec.Feed(buf[:n], t.dispatch)
			t.decodeErrors.Store(t.dec.Errors())
		}
		if err == nil {
			continue
		}

		select {
		case <-t.stop:
			return
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			t.log.Warn("modem link lost", zap.Error(err))
			return
		}
		t.log.Debug("read failed", zap.Error(err))
		time.Sleep(10 * time.Millisecond)
	}
}

// dispatch turns a notification into a handler call
func (t *Transport) dispatch(m Message) {
	t.mu.Lock()
	h, open := t.h, t.open
	t.mu.Unlock()

	t.notifications.Add(1)
	if h == nil || !open {
		t.dropped.Add(1)
		return
	}

	switch m.Cmd {
	case NotifyPacket:
		p, err := decodePacket(m.Payload)
		if err != nil {
			t.dropped.Add(1)
			return
		}
		p.Data = append([]byte(nil), p.Data...)
		h.MessageReceived(p)
	case NotifyTxDone:
		ok, err := decodeBool(m.Payload)
		if err != nil {
			t.dropped.Add(1)
			return
		}
		h.SendCompleted(ok)
	case NotifyRxDone:
		data, err := decodeBool(m.Payload)
		if err != nil {
			t.dropped.Add(1)
			return
		}
		h.ReceiveCompleted(data)
	default:
		t.dropped.Add(1)
		t.log.Debug("unknown notification", zap.Uint8("cmd", m.Cmd))
	}
}
