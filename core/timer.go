package core

// Scheduler clocks count milliseconds and wrap at 2^32
const TicksPerSecond = 1000

// TimerFromSeconds converts seconds to scheduler ticks
func TimerFromSeconds(s uint32) uint32 {
	return s * TicksPerSecond
}

// TimerToMS converts scheduler ticks to milliseconds
func TimerToMS(ticks uint32) uint32 {
	return ticks * 1000 / TicksPerSecond
}

// timerBefore reports whether a is earlier than b, tolerating wrap-around
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
