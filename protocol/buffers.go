package protocol

// ScratchSize bounds a single encoded message on the serial modem link
const ScratchSize = 96

// OutputBuffer provides an abstraction for writing outgoing stream data
type OutputBuffer interface {
	// Output writes data to the buffer
	Output(data ...byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update modifies a byte at a specific position
	Update(pos int, val byte)

	// DataSince returns data from a specific position to current
	DataSince(pos int) []byte
}

// ScratchOutput implements OutputBuffer over a fixed-size array.
// Writes past the end are dropped and flagged.
type ScratchOutput struct {
	buf      [ScratchSize]byte
	pos      int
	overflow bool
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data ...byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Overflowed reports whether any write was truncated since the last Reset
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer is a circular byte buffer. One slot is kept free to tell full
// from empty, so it holds capacity-1 bytes.
type FifoBuffer struct {
	buf    []byte
	linear []byte
	read   int
	write  int
	size   int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data and returns the number of bytes accepted
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written
}

// Peek copies up to len(data) bytes from the front without consuming them
func (f *FifoBuffer) Peek(data []byte) int {
	pos := f.read
	n := 0
	for n < len(data) && pos != f.write {
		data[n] = f.buf[pos]
		pos = (pos + 1) % f.size
		n++
	}
	return n
}

// Read reads up to len(data) bytes from the front
func (f *FifoBuffer) Read(data []byte) int {
	n := f.Peek(data)
	f.Pop(n)
	return n
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return f.size - f.Available() - 1
}

// Data returns the available bytes as one contiguous slice. When the content
// wraps it is copied into an internal buffer that is reused by later calls.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	if f.linear == nil {
		f.linear = make([]byte, f.size)
	}
	n := copy(f.linear, f.buf[f.read:])
	n += copy(f.linear[n:], f.buf[:f.write])
	return f.linear[:n]
}

// Pop removes n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if avail := f.Available(); n > avail {
		n = avail
	}
	f.read = (f.read + n) % f.size
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
