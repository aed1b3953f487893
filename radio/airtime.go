package radio

import "radiolink/protocol"

// Baudrate is the over-the-air symbol rate in bits per second
type Baudrate uint32

const (
	Baud4800   Baudrate = 4800
	Baud9600   Baudrate = 9600
	Baud19200  Baudrate = 19200
	Baud38400  Baudrate = 38400
	Baud57600  Baudrate = 57600
	Baud115200 Baudrate = 115200
)

// Baudrates lists the supported rates in ascending order
var Baudrates = []Baudrate{Baud4800, Baud9600, Baud19200, Baud38400, Baud57600, Baud115200}

// ValidateBaudrate maps a raw rate onto a supported Baudrate
func ValidateBaudrate(bps uint32) (Baudrate, error) {
	for _, b := range Baudrates {
		if uint32(b) == bps {
			return b, nil
		}
	}
	return 0, ErrInvalidBaudrate
}

// Bytes the radio adds around every frame
const (
	PreambleBytes = 4
	SyncWordBytes = 2
	CRCBytes      = 2
	GuardBytes    = 2

	FrameOverhead = PreambleBytes + SyncWordBytes + CRCBytes + GuardBytes
)

// BytesToUS returns the time in microseconds to clock n raw bytes at baud,
// rounded up
func BytesToUS(n int, baud Baudrate) uint32 {
	if baud == 0 || n <= 0 {
		return 0
	}
	bits := uint64(n) * 8000000
	return uint32((bits + uint64(baud) - 1) / uint64(baud))
}

// AirtimeUS returns the on-air duration of an n-byte frame including the
// preamble, sync word and CRC the radio wraps around it
func AirtimeUS(n int, baud Baudrate) uint32 {
	return BytesToUS(n+FrameOverhead, baud)
}

// AckWindowUS sizes the wait for an acknowledge after a send
func AckWindowUS(baud Baudrate) uint32 {
	return AirtimeUS(protocol.AckFrameSize, baud)
}

// DataWindowUS sizes a bounded wait for the largest data frame
func DataWindowUS(baud Baudrate) uint32 {
	return AirtimeUS(protocol.MaxFrameSize, baud)
}

// PreambleBudgetUS is the default carrier-sense budget of a protocol send
func PreambleBudgetUS(baud Baudrate) uint32 {
	return BytesToUS(PreambleBytes, baud)
}
