// Package core implements the link protocol engine: a cooperative state
// machine that moves one acknowledged message at a time between a
// coordinator and its leaves over a radio.Transport.
package core

import (
	"fmt"
	"sync/atomic"

	"radiolink/protocol"
	"radiolink/radio"
)

// DataHandler receives a data frame addressed to this unit. msg aliases an
// engine buffer that is cleared when the handler returns.
type DataHandler func(msg protocol.Data, rssi int8)

// CommandReceivedHandler receives a command frame addressed to this unit.
// msg aliases an engine buffer that is cleared when the handler returns.
type CommandReceivedHandler func(msg protocol.Command, rssi int8)

// Config selects the engine role and radio parameters
type Config struct {
	Role Role
	// ID is the leaf identifier. A coordinator always uses BroadcastID.
	ID    uint32
	Radio radio.Config
}

// Stats counts link activity since the engine was created
type Stats struct {
	Sent         uint32 // frames handed to the transport, retries included
	Acknowledged uint32
	SendFailures uint32
	Received     uint32 // data and command frames delivered to handlers
	AcksSent     uint32
	Dropped      uint32 // events lost to a full queue or oversize frames
}

// Engine runs the link state machine. Process is driven from a single loop;
// AppendData, AppendCommand, IsActive, HasOutgoing, State and Stats are safe
// from other goroutines.
type Engine struct {
	transport radio.Transport
	cfg       Config
	policy    *policy
	id        uint32
	state     atomic.Uint32
	initErr   error

	// standby was requested since entering Idle
	standby bool

	ackWindowUS uint32
	lbtBudgetUS uint32

	out    mailbox
	events eventQueue

	incoming [protocol.MaxFrameSize]byte
	inLen    int
	inRSSI   int8

	ack       [protocol.AckFrameSize]byte
	ackStaged bool

	onData    DataHandler
	onCommand CommandReceivedHandler

	trace Trace

	sent, acked, sendFailures, received, acksSent atomic.Uint32
}

// New creates an engine on top of t. Nothing touches the radio until the
// first Process call.
func New(t radio.Transport, cfg Config) *Engine {
	p := &policies[RoleLeaf]
	if cfg.Role == RoleCoordinator {
		p = &policies[RoleCoordinator]
	}
	return &Engine{
		transport:   t,
		cfg:         cfg,
		policy:      p,
		id:          cfg.Role.unitID(cfg.ID),
		ackWindowUS: radio.AckWindowUS(cfg.Radio.Baudrate),
		lbtBudgetUS: radio.PreambleBudgetUS(cfg.Radio.Baudrate),
	}
}

// ID returns the unit identifier used as the source of outgoing frames
func (e *Engine) ID() uint32 {
	return e.id
}

// Role returns the configured role
func (e *Engine) Role() Role {
	return e.cfg.Role
}

// State returns the current state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(to State) {
	from := e.State()
	if from == to {
		return
	}
	if to != StateIdle {
		e.standby = false
	}
	e.state.Store(uint32(to))
	e.trace.record(from, to)
}

// Trace returns the transition ring
func (e *Engine) Trace() *Trace {
	return &e.trace
}

// IsActive reports whether an exchange is in progress. A unit may only
// sleep while this is false.
func (e *Engine) IsActive() bool {
	return e.State() != StateIdle
}

// HasOutgoing reports whether a message waits in the mailbox
func (e *Engine) HasOutgoing() bool {
	return e.out.occupied()
}

// AppendData queues a data frame for dest. The mailbox holds one message;
// ErrMailboxFull is returned until the previous one is acknowledged.
func (e *Engine) AppendData(dest uint32, payload []byte) error {
	return e.out.putData(e.id, dest, payload)
}

// AppendCommand queues a command frame for dest
func (e *Engine) AppendCommand(dest uint32, dir protocol.Direction, code uint8, params []byte) error {
	return e.out.putCommand(e.id, dest, dir, code, params)
}

// RegisterDataReceived installs the data handler; nil disables delivery.
// Call it before the loop starts.
func (e *Engine) RegisterDataReceived(h DataHandler) {
	e.onData = h
}

// RegisterCommandReceived installs the command handler; nil disables
// delivery. Call it before the loop starts.
func (e *Engine) RegisterCommandReceived(h CommandReceivedHandler) {
	e.onCommand = h
}

// Stats returns a snapshot of the counters
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:         e.sent.Load(),
		Acknowledged: e.acked.Load(),
		SendFailures: e.sendFailures.Load(),
		Received:     e.received.Load(),
		AcksSent:     e.acksSent.Load(),
		Dropped:      e.events.dropped.Load(),
	}
}

// Close releases the transport and discards events it raised but Process
// has not applied
func (e *Engine) Close() error {
	err := e.transport.Close()
	e.events.reset()
	return err
}

// Process runs one step: pending transport events are applied in arrival
// order, then the current state acts once. It returns an error only when the
// transport cannot be opened, and keeps returning it.
func (e *Engine) Process() error {
	if e.State() == StateInit {
		return e.initialize()
	}

	var ev event
	for e.events.pop(&ev) {
		switch ev.kind {
		case eventMessage:
			e.messageReceived(ev.data[:ev.n], ev.rssi)
		case eventSendDone:
			e.sendCompleted(ev.ok)
		case eventReceiveDone:
			e.receiveCompleted()
		}
	}

	switch e.State() {
	case StateReceive:
		e.startReceive()
	case StateProcessMessage:
		e.processMessage()
	case StateSend:
		e.send()
	case StateIdle:
		e.idle()
	}
	return nil
}

func (e *Engine) initialize() error {
	if e.initErr != nil {
		return e.initErr
	}
	if err := e.cfg.Radio.Validate(); err != nil {
		e.initErr = fmt.Errorf("core: radio config: %w", err)
		return e.initErr
	}
	e.transport.SetHandler(&e.events)
	if err := e.transport.Open(e.cfg.Radio); err != nil {
		e.initErr = fmt.Errorf("core: open transport: %w", err)
		return e.initErr
	}
	e.setState(StateIdle)
	return nil
}

func (e *Engine) messageReceived(frame []byte, rssi int8) {
	h, err := protocol.DecodeHeader(frame)
	if err != nil || h.Dest != e.id {
		return
	}

	switch e.State() {
	case StateWaitingAck:
		if h.Type != protocol.MsgAck {
			return
		}
		a, err := protocol.DecodeAck(frame)
		if err != nil {
			return
		}
		if e.out.acknowledge(a.AckNum) {
			e.acked.Add(1)
		}
		e.transport.DisableReceive()

	case StateReceiving:
		switch h.Type {
		case protocol.MsgData:
			if _, err := protocol.DecodeData(frame); err != nil {
				return
			}
		case protocol.MsgCommand:
			if _, err := protocol.DecodeCommand(frame); err != nil {
				return
			}
		default:
			return
		}
		e.inLen = copy(e.incoming[:], frame[:h.Len()])
		e.inRSSI = rssi
		if _, err := protocol.NewAck(e.id, h.Source, h.MsgNum).Encode(e.ack[:]); err == nil {
			e.ackStaged = true
		}
		e.transport.DisableReceive()
	}
}

func (e *Engine) sendCompleted(ok bool) {
	switch e.State() {
	case StateSending:
		e.setState(StateWaitingAck)
		if !ok {
			e.sendFailures.Add(1)
			e.setState(StateIdle)
			return
		}
		if err := e.transport.EnableReceive(e.ackWindowUS, true, false); err != nil {
			e.setState(StateIdle)
		}
	case StateSendingAck:
		e.setState(StateProcessMessage)
	}
}

func (e *Engine) receiveCompleted() {
	switch e.State() {
	case StateWaitingAck:
		e.setState(e.policy.afterAck)
	case StateReceiving:
		if !e.ackStaged {
			e.setState(StateIdle)
			return
		}
		e.setState(StateSendingAck)
		if err := e.transport.Send(e.ack[:], 0, 0); err != nil {
			e.setState(StateProcessMessage)
			return
		}
		e.acksSent.Add(1)
	}
}

func (e *Engine) startReceive() {
	e.ackStaged = false
	e.setState(StateReceiving)
	timeout, cot, cor := e.policy.receiveWindow(e.cfg.Radio.Baudrate)
	if err := e.transport.EnableReceive(timeout, cot, cor); err != nil {
		e.setState(StateIdle)
	}
}

func (e *Engine) send() {
	frame := e.out.frame()
	if frame == nil {
		e.setState(e.policy.sendEmpty)
		return
	}
	e.setState(StateSending)
	if err := e.transport.Send(frame, e.cfg.Radio.LBTRSSI, e.lbtBudgetUS); err != nil {
		e.sendFailures.Add(1)
		e.setState(StateIdle)
		return
	}
	e.sent.Add(1)
}

func (e *Engine) processMessage() {
	e.setState(StateIdle)
	if e.inLen == 0 {
		return
	}
	frame := e.incoming[:e.inLen]
	h, err := protocol.DecodeHeader(frame)
	if err == nil && e.policy.piggyback {
		if dest, ok := e.out.destination(); ok && dest == h.Source {
			e.setState(StateSend)
		}
	}

	if err == nil {
		switch h.Type {
		case protocol.MsgData:
			if d, err := protocol.DecodeData(frame); err == nil {
				e.received.Add(1)
				if e.onData != nil {
					e.onData(d, e.inRSSI)
				}
			}
		case protocol.MsgCommand:
			if c, err := protocol.DecodeCommand(frame); err == nil {
				e.received.Add(1)
				if e.onCommand != nil {
					e.onCommand(c, e.inRSSI)
				}
			}
		}
	}

	e.incoming = [protocol.MaxFrameSize]byte{}
	e.inLen = 0
}

func (e *Engine) idle() {
	if e.out.occupied() {
		e.setState(StateSend)
		return
	}
	if !e.policy.standbyWhenIdle {
		e.setState(StateReceive)
		return
	}
	if !e.standby {
		e.standby = true
		_ = e.transport.Standby()
	}
}
