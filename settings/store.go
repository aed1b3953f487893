package settings

import (
	"encoding/binary"
	"fmt"
)

// Store reads and writes the settings record inside one erase block
type Store struct {
	flash  Flash
	start  int64
	size   int64
	stride int64
	block  int64
}

// NewStore uses erase block number block of f for settings
func NewStore(f Flash, block int64) (*Store, error) {
	ebs := f.EraseBlockSize()
	if ebs <= 0 || block < 0 || (block+1)*ebs > f.Size() {
		return nil, fmt.Errorf("%w: block %d", ErrRegion, block)
	}
	stride := int64(RecordSize)
	if wbs := f.WriteBlockSize(); wbs > 1 {
		stride = (stride + wbs - 1) / wbs * wbs
	}
	if stride > ebs {
		return nil, fmt.Errorf("%w: record slot %d exceeds block %d", ErrRegion, stride, ebs)
	}
	return &Store{flash: f, start: block * ebs, size: ebs, stride: stride, block: block}, nil
}

// Slots returns how many records fit before the block must be erased
func (s *Store) Slots() int {
	return int(s.size / s.stride)
}

// find returns the offset of the newest record. That is the last slot whose
// record validates; a slot whose write was cut short fails its checksum and
// is skipped. With no valid record it reports the first anchored slot so
// Load can surface the checksum error.
func (s *Store) find() (int64, bool, error) {
	buf := make([]byte, RecordSize)
	var st Settings
	anchored, valid := int64(-1), int64(-1)
	for off := int64(0); off+s.stride <= s.size; off += s.stride {
		if _, err := s.flash.ReadAt(buf, s.start+off); err != nil {
			return 0, false, err
		}
		if binary.LittleEndian.Uint64(buf) != Anchor {
			continue
		}
		if anchored < 0 {
			anchored = off
		}
		if st.UnmarshalBinary(buf) == nil {
			valid = off
		}
	}
	switch {
	case valid >= 0:
		return valid, true, nil
	case anchored >= 0:
		return anchored, true, nil
	}
	return 0, false, nil
}

// erased reports whether the slot at off is still all 0xFF
func (s *Store) erased(off int64) (bool, error) {
	buf := make([]byte, s.stride)
	if _, err := s.flash.ReadAt(buf, s.start+off); err != nil {
		return false, err
	}
	for _, b := range buf {
		if b != 0xFF {
			return false, nil
		}
	}
	return true, nil
}

// Load returns the current record
func (s *Store) Load() (Settings, error) {
	var st Settings
	off, ok, err := s.find()
	if err != nil {
		return st, err
	}
	if !ok {
		return st, ErrNotFound
	}
	buf := make([]byte, RecordSize)
	if _, err := s.flash.ReadAt(buf, s.start+off); err != nil {
		return st, err
	}
	err = st.UnmarshalBinary(buf)
	return st, err
}

// Save writes st to the slot after the current record, erasing the block
// when it is full or that slot was left programmed by an interrupted save.
// The new record is written before the old one is cleared, so a cut in
// between leaves two valid records and find picks the later one.
func (s *Store) Save(st Settings) error {
	slot := make([]byte, s.stride)
	for i := range slot {
		slot[i] = 0xFF
	}
	st.put(slot)

	cur, ok, err := s.find()
	if err != nil {
		return err
	}
	next := cur + s.stride
	free := ok && next+s.stride <= s.size
	if free {
		if free, err = s.erased(next); err != nil {
			return err
		}
	}
	if !free {
		if err := s.flash.EraseBlocks(s.block, 1); err != nil {
			return fmt.Errorf("settings: erase: %w", err)
		}
		_, err := s.flash.WriteAt(slot, s.start)
		return err
	}

	if _, err := s.flash.WriteAt(slot, s.start+next); err != nil {
		return err
	}
	zero := make([]byte, s.stride)
	_, err = s.flash.WriteAt(zero, s.start+cur)
	return err
}

// LoadOrDefault loads the record, or stores and returns the defaults when
// there is no valid one
func (s *Store) LoadOrDefault() (Settings, error) {
	st, err := s.Load()
	if err == nil {
		return st, nil
	}
	st = Default()
	return st, s.Save(st)
}
