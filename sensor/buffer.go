// Package sensor buffers sensor samples until the radio link forwards them
// and drives the battery monitor that produces them.
package sensor

import (
	"errors"

	"radiolink/protocol"
)

const (
	// RecordHeaderSize is the sensor id and size prefix of a stored record
	RecordHeaderSize = 2

	// MaxRecordData bounds the sample bytes of one record
	MaxRecordData = 12

	// BufferSize is the byte capacity of the record ring
	BufferSize = 300
)

var ErrRecordTooLarge = errors.New("sensor: record too large")

// Record is one sample as stored and forwarded
type Record struct {
	SensorID uint8
	Data     []byte
}

// Buffer is a ring of variable-length records. When full, the oldest
// records make room for new ones. It is used from the main loop only.
type Buffer struct {
	fifo    *protocol.FifoBuffer
	count   int
	evicted uint32
	scratch [RecordHeaderSize + MaxRecordData]byte
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{fifo: protocol.NewFifoBuffer(BufferSize + 1)}
}

// Count returns the number of stored records
func (b *Buffer) Count() int {
	return b.count
}

// Evicted returns how many records were dropped to make room
func (b *Buffer) Evicted() uint32 {
	return b.evicted
}

// Push stores r, evicting the oldest records when space runs out
func (b *Buffer) Push(r Record) error {
	if len(r.Data) > MaxRecordData {
		return ErrRecordTooLarge
	}
	need := RecordHeaderSize + len(r.Data)
	for b.count > 0 && b.fifo.Free() < need {
		b.Pop()
		b.evicted++
	}
	b.scratch[0] = r.SensorID
	b.scratch[1] = uint8(len(r.Data))
	copy(b.scratch[RecordHeaderSize:], r.Data)
	b.fifo.Write(b.scratch[:need])
	b.count++
	return nil
}

// Peek returns the oldest record without removing it. Data is a copy.
func (b *Buffer) Peek() (Record, bool) {
	if b.count == 0 {
		return Record{}, false
	}
	n := b.fifo.Peek(b.scratch[:])
	size := int(b.scratch[1])
	if size > MaxRecordData {
		size = MaxRecordData
	}
	if n < RecordHeaderSize+size {
		return Record{}, false
	}
	data := make([]byte, size)
	copy(data, b.scratch[RecordHeaderSize:])
	return Record{SensorID: b.scratch[0], Data: data}, true
}

// Pop removes the oldest record
func (b *Buffer) Pop() bool {
	if b.count == 0 {
		return false
	}
	var hdr [RecordHeaderSize]byte
	b.fifo.Peek(hdr[:])
	size := int(hdr[1])
	if size > MaxRecordData {
		size = MaxRecordData
	}
	b.fifo.Pop(RecordHeaderSize + size)
	b.count--
	return true
}

// Reset drops every record
func (b *Buffer) Reset() {
	b.fifo.Reset()
	b.count = 0
}
