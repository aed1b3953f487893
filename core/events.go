package core

import (
	"sync/atomic"

	"radiolink/protocol"
	"radiolink/radio"
)

type eventKind uint8

const (
	eventMessage eventKind = iota + 1
	eventSendDone
	eventReceiveDone
)

type event struct {
	kind eventKind
	ok   bool
	rssi int8
	n    uint8
	data [protocol.MaxFrameSize]byte
}

// eventQueueSize must be a power of two
const eventQueueSize = 8

// Slots kept for completions, at most one send and one receive are pending
const completionReserve = 2

// eventQueue carries transport callbacks to the engine loop. Producers are
// serialized by the critical section; the loop is the only consumer.
type eventQueue struct {
	ring    [eventQueueSize]event
	head    atomic.Uint32 // next slot to read
	tail    atomic.Uint32 // next slot to write
	dropped atomic.Uint32
}

func (q *eventQueue) push(ev *event) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	limit := uint32(eventQueueSize)
	if ev.kind == eventMessage {
		limit -= completionReserve
	}
	tail := q.tail.Load()
	if tail-q.head.Load() >= limit {
		q.dropped.Add(1)
		return
	}
	q.ring[tail&(eventQueueSize-1)] = *ev
	q.tail.Store(tail + 1)
}

func (q *eventQueue) pop(ev *event) bool {
	head := q.head.Load()
	if head == q.tail.Load() {
		return false
	}
	*ev = q.ring[head&(eventQueueSize-1)]
	q.head.Store(head + 1)
	return true
}

func (q *eventQueue) reset() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	q.head.Store(q.tail.Load())
}

// MessageReceived implements radio.Handler
func (q *eventQueue) MessageReceived(p radio.Packet) {
	if len(p.Data) > protocol.MaxFrameSize {
		q.dropped.Add(1)
		return
	}
	ev := event{kind: eventMessage, rssi: p.RSSI, n: uint8(len(p.Data))}
	copy(ev.data[:], p.Data)
	q.push(&ev)
}

// SendCompleted implements radio.Handler
func (q *eventQueue) SendCompleted(ok bool) {
	q.push(&event{kind: eventSendDone, ok: ok})
}

// ReceiveCompleted implements radio.Handler
func (q *eventQueue) ReceiveCompleted(dataReceived bool) {
	q.push(&event{kind: eventReceiveDone, ok: dataReceived})
}
