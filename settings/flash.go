package settings

import "sync"

// Flash is a NOR block device. machine.Flash satisfies it on tinygo targets.
type Flash interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// MemFlash emulates NOR flash in memory. Writes can only clear bits and
// erasing sets a block back to 0xFF.
type MemFlash struct {
	mu         sync.Mutex
	data       []byte
	eraseBlock int64
	writeBlock int64
	erases     int
	writes     int
}

// NewMemFlash creates an erased device
func NewMemFlash(size, eraseBlock int64) *MemFlash {
	f := &MemFlash{data: make([]byte, size), eraseBlock: eraseBlock, writeBlock: 1}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	return f
}

// SetWriteBlockSize sets the programming granularity reported to users
func (f *MemFlash) SetWriteBlockSize(n int64) {
	f.writeBlock = n
}

func (f *MemFlash) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(f.data)) {
		return 0, ErrOutOfRange
	}
	return copy(p, f.data[off:]), nil
}

func (f *MemFlash) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(f.data)) {
		return 0, ErrOutOfRange
	}
	for i, b := range p {
		f.data[off+int64(i)] &= b
	}
	f.writes++
	return len(p), nil
}

func (f *MemFlash) Size() int64 {
	return int64(len(f.data))
}

func (f *MemFlash) WriteBlockSize() int64 {
	return f.writeBlock
}

func (f *MemFlash) EraseBlockSize() int64 {
	return f.eraseBlock
}

func (f *MemFlash) EraseBlocks(start, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := start * f.eraseBlock
	to := (start + length) * f.eraseBlock
	if start < 0 || length < 0 || to > int64(len(f.data)) {
		return ErrOutOfRange
	}
	for i := from; i < to; i++ {
		f.data[i] = 0xFF
	}
	f.erases++
	return nil
}

// Erases returns how many erase operations ran
func (f *MemFlash) Erases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.erases
}

// Writes returns how many write operations ran
func (f *MemFlash) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
