//go:build rp2040 || rp2350

// Package board holds the pin map and peripheral glue shared by the leaf
// and modem firmware on the RP2040 reference board.
package board

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// Uptime reads the free running 64-bit microsecond timer
func Uptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		// high word unchanged, no rollover during the read
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// Millis returns milliseconds since boot
func Millis() uint32 {
	return uint32(Uptime() / 1000)
}

// Seconds returns seconds since boot
func Seconds() uint32 {
	return uint32(Uptime() / 1000000)
}
