package protocol

import "encoding/binary"

// UnitID folds a hardware unique identifier into the 32-bit source address
// a leaf uses on the link. Words are XORed little-endian; a trailing partial
// word is zero padded. BroadcastID belongs to the coordinator and is refused.
func UnitID(hw []byte) (uint32, error) {
	if len(hw) == 0 {
		return 0, ErrNoUnitID
	}
	var id uint32
	var word [4]byte
	for len(hw) > 0 {
		word = [4]byte{}
		n := copy(word[:], hw)
		hw = hw[n:]
		id ^= binary.LittleEndian.Uint32(word[:])
	}
	if id == BroadcastID {
		return 0, ErrReservedUnitID
	}
	return id, nil
}
