package core

// TraceWriter is a function type for writing trace lines
type TraceWriter func(string)

// Transition is one recorded state change
type Transition struct {
	Seq  uint32
	From State
	To   State
}

// TraceSize is the number of transitions kept for post-mortem
const TraceSize = 32

// Trace keeps the latest state transitions in a ring. It is written by the
// engine loop and must be read from the same goroutine.
type Trace struct {
	ring   [TraceSize]Transition
	head   uint8
	seq    uint32
	writer TraceWriter
}

// SetWriter sets a function that receives every transition as it happens
func (t *Trace) SetWriter(w TraceWriter) {
	t.writer = w
}

func (t *Trace) record(from, to State) {
	t.seq++
	t.ring[t.head] = Transition{Seq: t.seq, From: from, To: to}
	t.head = (t.head + 1) % TraceSize
	if t.writer != nil {
		t.writer(formatTransition(t.ring[(t.head+TraceSize-1)%TraceSize]))
	}
}

// Transitions returns the recorded transitions from oldest to newest
func (t *Trace) Transitions() []Transition {
	out := make([]Transition, 0, TraceSize)
	for i := uint8(0); i < TraceSize; i++ {
		tr := t.ring[(t.head+i)%TraceSize]
		if tr.Seq == 0 {
			continue
		}
		out = append(out, tr)
	}
	return out
}

// Dump writes the ring to w, oldest first
func (t *Trace) Dump(w TraceWriter) {
	if w == nil {
		return
	}
	w("[TRACE] === state trace ===")
	for _, tr := range t.Transitions() {
		w(formatTransition(tr))
	}
	w("[TRACE] === end ===")
}

// Clear empties the ring
func (t *Trace) Clear() {
	t.ring = [TraceSize]Transition{}
	t.head = 0
}

func formatTransition(tr Transition) string {
	return "[TRACE] #" + utoa(tr.Seq) + " " + tr.From.String() + " -> " + tr.To.String()
}
