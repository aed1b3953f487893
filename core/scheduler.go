package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time. It is driven from the main
// loop; Add and Remove may be called from other goroutines.
type Scheduler struct {
	list *Timer
}

// Add schedules t, replacing any earlier registration of the same timer
func (s *Scheduler) Add(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.remove(t)
	s.insert(t)
}

// Remove unschedules t
func (s *Scheduler) Remove(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	s.remove(t)
}

// Next returns the wake time of the earliest timer
func (s *Scheduler) Next() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if s.list == nil {
		return 0, false
	}
	return s.list.WakeTime, true
}

// insert links t in sorted order by WakeTime
func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || timerBefore(t.WakeTime, s.list.WakeTime) {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && !timerBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	for p := &s.list; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// Dispatch runs every timer due at now. Handlers run outside the critical
// section and may Add timers.
func (s *Scheduler) Dispatch(now uint32) int {
	ran := 0
	for {
		state := disableInterrupts()
		t := s.list
		if t == nil || timerBefore(now, t.WakeTime) {
			restoreInterrupts(state)
			return ran
		}
		s.list = t.Next
		t.Next = nil
		restoreInterrupts(state)

		ran++
		if t.Handler(t) == SF_RESCHEDULE {
			s.Add(t)
		}
	}
}
