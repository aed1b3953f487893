// Package settings keeps the unit configuration in a small checksummed record
// that moves through a flash erase block so every save lands on fresh cells.
package settings

import (
	"encoding/binary"
	"errors"

	"radiolink/protocol"
	"radiolink/radio"
)

const (
	// Anchor marks the start of a live record
	Anchor uint64 = 0xAABBCCDD

	// RecordSize is the encoded length of a record
	RecordSize = 26

	// DefaultReadoutIntervalSec is the factory sensor readout period
	DefaultReadoutIntervalSec = 60

	crcOffset = RecordSize - 2
	flagPA    = 1 << 0
)

var (
	ErrNotFound   = errors.New("settings: no record")
	ErrChecksum   = errors.New("settings: checksum mismatch")
	ErrBadAnchor  = errors.New("settings: bad anchor")
	ErrShort      = errors.New("settings: record too short")
	ErrOutOfRange = errors.New("settings: access outside flash")
	ErrRegion     = errors.New("settings: region does not fit the flash")
)

// Settings is the persisted unit configuration
type Settings struct {
	ReadoutIntervalSec uint32
	Radio              radio.Config
}

// Default returns the factory configuration
func Default() Settings {
	return Settings{
		ReadoutIntervalSec: DefaultReadoutIntervalSec,
		Radio:              radio.DefaultConfig(),
	}
}

// MarshalBinary encodes the record with its anchor and checksum
func (s Settings) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	s.put(b)
	return b, nil
}

func (s Settings) put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:], Anchor)
	binary.LittleEndian.PutUint32(b[8:], s.ReadoutIntervalSec)
	binary.LittleEndian.PutUint32(b[12:], uint32(s.Radio.Baudrate))
	b[16] = uint8(s.Radio.Band)
	b[17] = s.Radio.Channel
	binary.LittleEndian.PutUint16(b[18:], s.Radio.SyncWord)
	b[20] = uint8(s.Radio.TxPower)
	var flags uint8
	if s.Radio.EnablePA {
		flags |= flagPA
	}
	b[21] = flags
	b[22] = uint8(s.Radio.LBTRSSI)
	b[23] = 0
	binary.LittleEndian.PutUint16(b[crcOffset:], protocol.CRC16(b[:crcOffset]))
}

// UnmarshalBinary decodes a record, checking anchor and checksum
func (s *Settings) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return ErrShort
	}
	if binary.LittleEndian.Uint64(b) != Anchor {
		return ErrBadAnchor
	}
	if protocol.CRC16(b[:crcOffset]) != binary.LittleEndian.Uint16(b[crcOffset:]) {
		return ErrChecksum
	}
	s.ReadoutIntervalSec = binary.LittleEndian.Uint32(b[8:])
	s.Radio = radio.Config{
		Baudrate: radio.Baudrate(binary.LittleEndian.Uint32(b[12:])),
		Band:     radio.Band(b[16]),
		Channel:  b[17],
		SyncWord: binary.LittleEndian.Uint16(b[18:]),
		TxPower:  int8(b[20]),
		EnablePA: b[21]&flagPA != 0,
		LBTRSSI:  int8(b[22]),
	}
	return nil
}
