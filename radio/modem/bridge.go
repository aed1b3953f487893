package modem

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"radiolink/protocol"
	"radiolink/radio"
)

var errUnknownCommand = errors.New("modem: unknown command")

// Bridge is the modem side of the link. It decodes host commands, drives the
// wrapped transport and writes that transport's events back as notifications.
type Bridge struct {
	dev radio.Transport
	w   io.Writer
	dec *Decoder

	writeMu sync.Mutex
	out     protocol.ScratchOutput

	commands    atomic.Uint32
	failures    atomic.Uint32
	writeErrors atomic.Uint32
}

var _ radio.Handler = (*Bridge)(nil)

// NewBridge installs itself as t's handler. Notifications are written to w.
func NewBridge(t radio.Transport, w io.Writer) *Bridge {
	b := &Bridge{dev: t, w: w, dec: NewDecoder()}
	t.SetHandler(b)
	return b
}

// Feed processes bytes received from the host
func (b *Bridge) Feed(data []byte) {
	b.dec.Feed(data, b.handle)
}

// Serve reads from r until it fails
func (b *Bridge) Serve(r io.Reader) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Feed(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

// Commands returns how many host commands have been carried out
func (b *Bridge) Commands() uint32 {
	return b.commands.Load()
}

// Failures returns how many commands the wrapped transport rejected
func (b *Bridge) Failures() uint32 {
	return b.failures.Load()
}

// DecodeErrors returns how many times the host stream lost synchronisation
func (b *Bridge) DecodeErrors() uint32 {
	return b.dec.Errors()
}

// handle runs one command. A rejected receive or send still produces the
// completion the host is waiting for.
func (b *Bridge) handle(m Message) {
	defer b.commands.Add(1)

	var err error
	switch m.Cmd {
	case CmdOpen:
		var cfg radio.Config
		if cfg, err = decodeConfig(m.Payload); err == nil {
			err = b.dev.Open(cfg)
		}
	case CmdClose:
		err = b.dev.Close()
	case CmdStandby:
		err = b.dev.Standby()
	case CmdRxOn:
		var r rxOn
		if r, err = decodeRxOn(m.Payload); err == nil {
			err = b.dev.EnableReceive(r.timeoutUS, r.continueOnTimeout, r.continueOnReceive)
		}
		if err != nil {
			b.ReceiveCompleted(false)
		}
	case CmdRxOff:
		b.dev.DisableReceive()
	case CmdTx:
		var t tx
		if t, err = decodeTx(m.Payload); err == nil {
			err = b.dev.Send(t.frame, t.lbtRSSI, t.lbtTimeoutUS)
		}
		if err != nil {
			b.SendCompleted(false)
		}
	default:
		err = errUnknownCommand
	}
	if err != nil {
		b.failures.Add(1)
	}
}

func (b *Bridge) notify(cmd uint8, fn func(out protocol.OutputBuffer)) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	msg, err := EncodeMessage(&b.out, cmd, fn)
	if err == nil {
		_, err = b.w.Write(msg)
	}
	if err != nil {
		b.writeErrors.Add(1)
	}
}

// MessageReceived implements radio.Handler
func (b *Bridge) MessageReceived(p radio.Packet) {
	b.notify(NotifyPacket, func(out protocol.OutputBuffer) {
		putPacket(out, p)
	})
}

// SendCompleted implements radio.Handler
func (b *Bridge) SendCompleted(ok bool) {
	b.notify(NotifyTxDone, func(out protocol.OutputBuffer) {
		putBool(out, ok)
	})
}

// ReceiveCompleted implements radio.Handler
func (b *Bridge) ReceiveCompleted(dataReceived bool) {
	b.notify(NotifyRxDone, func(out protocol.OutputBuffer) {
		putBool(out, dataReceived)
	})
}
