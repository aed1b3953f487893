//go:build !tinygo

package core

import "sync"

// irqState is a placeholder for the saved interrupt mask on regular Go
type irqState uintptr

// Radio events arrive on other goroutines here, so the critical section is a
// process-wide lock. Sections must not nest.
var criticalMu sync.Mutex

// disableInterrupts enters the critical section
func disableInterrupts() irqState {
	criticalMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(irqState) {
	criticalMu.Unlock()
}
