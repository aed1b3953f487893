// Package tag is the leaf application: it samples the battery monitor on a
// schedule, forwards the samples to the coordinator and answers register
// commands.
package tag

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"radiolink/core"
	"radiolink/protocol"
	"radiolink/sensor"
	"radiolink/settings"
)

// Registers reachable through the get and set commands
const (
	RegReboot          = 0
	RegReadoutInterval = 1
)

var ErrBadParams = errors.New("tag: malformed command parameters")

// Link is the part of the link engine the tag drives
type Link interface {
	Process() error
	AppendData(dest uint32, payload []byte) error
	AppendCommand(dest uint32, dir protocol.Direction, code uint8, params []byte) error
	RegisterCommandReceived(h core.CommandReceivedHandler)
	IsActive() bool
	HasOutgoing() bool
}

// Saver persists settings
type Saver interface {
	Save(settings.Settings) error
}

// Config wires a tag to its board
type Config struct {
	Link     Link
	Monitor  *sensor.BatteryMonitor
	Store    Saver
	Settings settings.Settings
	// Clock returns milliseconds since boot
	Clock func() uint32
	// Reboot restarts the unit. It may return on hosts.
	Reboot func()
}

// Tag is the leaf main loop state
type Tag struct {
	link     Link
	monitor  *sensor.BatteryMonitor
	store    Saver
	settings settings.Settings
	clock    func() uint32
	reboot   func()

	buffer   *sensor.Buffer
	commands *core.CommandRegistry
	sched    core.Scheduler
	readout  core.Timer
	resp     protocol.ScratchOutput

	// response waiting for a free mailbox
	pending     [protocol.MaxCommandParams]byte
	pendingLen  int
	pendingCode uint8

	force    atomic.Bool
	wake     chan struct{}
	forwards uint32
	lost     uint32
}

// New builds a tag and schedules the first readout immediately
func New(cfg Config) *Tag {
	t := &Tag{
		link:     cfg.Link,
		monitor:  cfg.Monitor,
		store:    cfg.Store,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		reboot:   cfg.Reboot,
		buffer:   sensor.NewBuffer(),
		commands: core.NewCommandRegistry(),
		wake:     make(chan struct{}, 1),
	}
	t.commands.Register(protocol.CmdGetRegister, "get_register", t.getRegister)
	t.commands.Register(protocol.CmdSetRegister, "set_register", t.setRegister)
	t.link.RegisterCommandReceived(t.commandReceived)
	t.monitor.OnReading(t.readingCompleted)

	t.readout.Handler = t.readoutTimer
	t.scheduleReadout(t.clock())
	return t
}

// Settings returns the active configuration
func (t *Tag) Settings() settings.Settings {
	return t.settings
}

// Buffer exposes the pending sample records
func (t *Tag) Buffer() *sensor.Buffer {
	return t.buffer
}

// Wake is signalled when a forced readout completes so a sleeping loop can
// resume early
func (t *Tag) Wake() <-chan struct{} {
	return t.wake
}

// Forwarded returns how many records went to the mailbox
func (t *Tag) Forwarded() uint32 {
	return t.forwards
}

// ForceReadout requests a measurement now. Safe from interrupt handlers.
func (t *Tag) ForceReadout() {
	t.force.Store(true)
	t.signal()
}

func (t *Tag) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Step runs one main loop pass. It returns how long the unit may sleep, or
// zero when it must keep polling. An error means the radio never came up.
func (t *Tag) Step() (time.Duration, error) {
	if err := t.link.Process(); err != nil {
		return 0, err
	}

	t.sched.Dispatch(t.clock())
	if t.force.Swap(false) {
		t.monitor.Read(true)
	}
	t.monitor.Process()
	if t.flushResponse() {
		t.forward()
	}

	if t.link.IsActive() || t.monitor.PreventLowPower() {
		return 0, nil
	}
	if t.link.HasOutgoing() {
		return time.Second, nil
	}
	if t.settings.ReadoutIntervalSec == 0 {
		return time.Second, nil
	}
	return time.Duration(t.settings.ReadoutIntervalSec) * time.Second, nil
}

// forward moves the oldest record into the mailbox. It is popped only once
// the engine accepted it.
func (t *Tag) forward() {
	r, ok := t.buffer.Peek()
	if !ok {
		return
	}
	err := t.link.AppendData(protocol.BroadcastID, r.Data)
	switch {
	case err == nil:
		t.buffer.Pop()
		t.forwards++
	case errors.Is(err, core.ErrMailboxFull):
	default:
		// cannot ever be sent
		t.buffer.Pop()
		t.lost++
	}
}

func (t *Tag) scheduleReadout(now uint32) {
	if t.settings.ReadoutIntervalSec == 0 {
		t.sched.Remove(&t.readout)
		return
	}
	t.readout.WakeTime = now
	t.sched.Add(&t.readout)
}

func (t *Tag) readoutTimer(tm *core.Timer) uint8 {
	t.monitor.Read(false)
	if t.settings.ReadoutIntervalSec == 0 {
		return core.SF_DONE
	}
	tm.WakeTime += core.TimerFromSeconds(t.settings.ReadoutIntervalSec)
	return core.SF_RESCHEDULE
}

func (t *Tag) readingCompleted(r sensor.BatteryReading) {
	_ = t.buffer.Push(r.Record())
	if r.Forced {
		t.signal()
	}
}

func (t *Tag) commandReceived(msg protocol.Command, rssi int8) {
	if msg.Direction != protocol.DirRequest {
		return
	}
	t.resp.Reset()
	if err := t.commands.Dispatch(msg.Code, msg.Params, &t.resp); err != nil {
		return
	}
	out := t.resp.Result()
	if len(out) == 0 {
		return
	}
	t.pendingLen = copy(t.pending[:], out)
	t.pendingCode = msg.Code
	t.flushResponse()
}

// flushResponse queues a pending response and reports whether none is left
func (t *Tag) flushResponse() bool {
	if t.pendingLen == 0 {
		return true
	}
	err := t.link.AppendCommand(protocol.BroadcastID, protocol.DirResponse, t.pendingCode, t.pending[:t.pendingLen])
	if errors.Is(err, core.ErrMailboxFull) {
		return false
	}
	t.pendingLen = 0
	return true
}

// getRegister answers reg u16 with reg u16, value u32, ok u8
func (t *Tag) getRegister(params []byte, resp protocol.OutputBuffer) error {
	if len(params) < 2 {
		return ErrBadParams
	}
	reg := binary.LittleEndian.Uint16(params)
	var val [4]byte
	ok := uint8(0)
	if reg == RegReadoutInterval {
		binary.LittleEndian.PutUint32(val[:], t.settings.ReadoutIntervalSec)
		ok = 1
	}
	resp.Output(params[0], params[1])
	resp.Output(val[:]...)
	resp.Output(ok)
	return nil
}

// setRegister takes reg u16 and a u32 value, or u16 from short senders, and
// answers reg u16, ok u8
func (t *Tag) setRegister(params []byte, resp protocol.OutputBuffer) error {
	var val uint32
	switch {
	case len(params) >= 6:
		val = binary.LittleEndian.Uint32(params[2:])
	case len(params) >= 4:
		val = uint32(binary.LittleEndian.Uint16(params[2:]))
	default:
		return ErrBadParams
	}
	reg := binary.LittleEndian.Uint16(params)

	if reg == RegReboot && val == 1 {
		if t.reboot != nil {
			t.reboot()
		}
		return nil
	}

	ok := uint8(0)
	if reg == RegReadoutInterval && val > 0 {
		next := t.settings
		next.ReadoutIntervalSec = val
		if t.store == nil || t.store.Save(next) == nil {
			ok = 1
		}
		t.settings = next
		t.scheduleReadout(t.clock() + core.TimerFromSeconds(val))
	}
	resp.Output(params[0], params[1], ok)
	return nil
}
