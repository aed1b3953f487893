package gateway

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"radiolink/core"
	"radiolink/protocol"
)

// DefaultQueueSize bounds the pending register commands
const DefaultQueueSize = 32

var ErrQueueFull = errors.New("gateway: command queue full")

// Outcome of one Drain call
type Outcome int

const (
	Idle     Outcome = iota // nothing to do or not yet allowed
	Appended                // head command handed to the mailbox
	Retry                   // mailbox occupied, command kept
	Dropped                 // command rejected by the engine and discarded
)

// Queue holds register commands until the single-slot mailbox can take
// them, pacing appends with a token bucket
type Queue struct {
	mu      sync.Mutex
	items   []Request
	size    int
	limiter *rate.Limiter
}

// NewQueue creates a queue releasing at most perSec commands per second
// with the given burst
func NewQueue(perSec float64, burst, size int) *Queue {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		size:    size,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Push appends r
func (q *Queue) Push(r Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.size {
		return ErrQueueFull
	}
	q.items = append(q.items, r)
	return nil
}

// Len returns the number of waiting commands
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the waiting commands
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.items...)
}

// Drain tries to hand the head command to link. A command refused because
// the mailbox is occupied stays at the head.
func (q *Queue) Drain(now time.Time, link Link) (Request, Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || link.HasOutgoing() {
		return Request{}, Idle, nil
	}
	if !q.limiter.AllowN(now, 1) {
		return Request{}, Idle, nil
	}

	r := q.items[0]
	err := link.AppendCommand(r.Node, protocol.DirRequest, r.Code, r.Params())
	switch {
	case err == nil:
		q.items = q.items[1:]
		return r, Appended, nil
	case errors.Is(err, core.ErrMailboxFull):
		return r, Retry, err
	default:
		q.items = q.items[1:]
		return r, Dropped, err
	}
}
