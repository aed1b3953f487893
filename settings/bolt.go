//go:build !tinygo

package settings

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var boltFlashBucket = []byte("flash")

// BoltFlash persists an emulated NOR device in a bbolt file, one key per
// erase block. Missing blocks read as erased.
type BoltFlash struct {
	db         *bbolt.DB
	size       int64
	eraseBlock int64
}

// OpenBoltFlash opens or creates the device file at path
func OpenBoltFlash(path string, size, eraseBlock int64) (*BoltFlash, error) {
	if eraseBlock <= 0 || size%eraseBlock != 0 {
		return nil, fmt.Errorf("%w: size %d, erase block %d", ErrRegion, size, eraseBlock)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltFlashBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltFlash{db: db, size: size, eraseBlock: eraseBlock}, nil
}

// Close releases the file
func (f *BoltFlash) Close() error {
	return f.db.Close()
}

func blockKey(n int64) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(n))
	return k
}

func (f *BoltFlash) erased() []byte {
	b := make([]byte, f.eraseBlock)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (f *BoltFlash) inRange(n int, off int64) bool {
	return off >= 0 && off+int64(n) <= f.size
}

func (f *BoltFlash) ReadAt(p []byte, off int64) (int, error) {
	if !f.inRange(len(p), off) {
		return 0, ErrOutOfRange
	}
	n := 0
	err := f.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltFlashBucket)
		for n < len(p) {
			pos := off + int64(n)
			blk, inner := pos/f.eraseBlock, pos%f.eraseBlock
			data := b.Get(blockKey(blk))
			if data == nil {
				data = f.erased()
			}
			n += copy(p[n:], data[inner:])
		}
		return nil
	})
	return n, err
}

func (f *BoltFlash) WriteAt(p []byte, off int64) (int, error) {
	if !f.inRange(len(p), off) {
		return 0, ErrOutOfRange
	}
	n := 0
	err := f.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltFlashBucket)
		for n < len(p) {
			pos := off + int64(n)
			blk, inner := pos/f.eraseBlock, pos%f.eraseBlock
			data := f.erased()
			if cur := b.Get(blockKey(blk)); cur != nil {
				copy(data, cur)
			}
			for i := inner; i < f.eraseBlock && n < len(p); i++ {
				data[i] &= p[n]
				n++
			}
			if err := b.Put(blockKey(blk), data); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

func (f *BoltFlash) Size() int64 {
	return f.size
}

func (f *BoltFlash) WriteBlockSize() int64 {
	return 1
}

func (f *BoltFlash) EraseBlockSize() int64 {
	return f.eraseBlock
}

func (f *BoltFlash) EraseBlocks(start, length int64) error {
	if start < 0 || length < 0 || (start+length)*f.eraseBlock > f.size {
		return ErrOutOfRange
	}
	return f.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltFlashBucket)
		for i := start; i < start+length; i++ {
			if err := b.Delete(blockKey(i)); err != nil {
				return err
			}
		}
		return nil
	})
}
