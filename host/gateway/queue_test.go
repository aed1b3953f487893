package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiolink/core"
	"radiolink/protocol"
)

type appended struct {
	dest   uint32
	code   uint8
	params []byte
}

type fakeLink struct {
	outgoing bool
	err      error
	got      []appended
}

func (l *fakeLink) HasOutgoing() bool { return l.outgoing }

func (l *fakeLink) AppendCommand(dest uint32, dir protocol.Direction, code uint8, params []byte) error {
	if l.err != nil {
		return l.err
	}
	l.got = append(l.got, appended{dest, code, params})
	return nil
}

func TestQueueDrainOrder(t *testing.T) {
	q := NewQueue(1000, 10, 4)
	link := &fakeLink{}
	require.NoError(t, q.Push(GetRegister(1, 1)))
	require.NoError(t, q.Push(SetRegister(2, 1, 9)))

	now := time.Now()
	r, out, err := q.Drain(now, link)
	require.NoError(t, err)
	assert.Equal(t, Appended, out)
	assert.Equal(t, GetRegister(1, 1), r)

	_, out, _ = q.Drain(now, link)
	assert.Equal(t, Appended, out)
	_, out, _ = q.Drain(now, link)
	assert.Equal(t, Idle, out)

	require.Len(t, link.got, 2)
	assert.Equal(t, appended{1, protocol.CmdGetRegister, []byte{1, 0}}, link.got[0])
	assert.Equal(t, appended{2, protocol.CmdSetRegister, []byte{1, 0, 9, 0, 0, 0}}, link.got[1])
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(1, 1, 2)
	require.NoError(t, q.Push(GetRegister(1, 0)))
	require.NoError(t, q.Push(GetRegister(1, 1)))
	assert.ErrorIs(t, q.Push(GetRegister(1, 2)), ErrQueueFull)
	assert.Equal(t, 2, q.Len())
	assert.Len(t, q.Pending(), 2)
}

func TestQueueWaitsForMailbox(t *testing.T) {
	q := NewQueue(1000, 10, 4)
	link := &fakeLink{outgoing: true}
	require.NoError(t, q.Push(GetRegister(1, 1)))

	_, out, _ := q.Drain(time.Now(), link)
	assert.Equal(t, Idle, out)
	assert.Equal(t, 1, q.Len())

	link.outgoing = false
	link.err = core.ErrMailboxFull
	_, out, err := q.Drain(time.Now(), link)
	assert.Equal(t, Retry, out)
	assert.ErrorIs(t, err, core.ErrMailboxFull)
	assert.Equal(t, 1, q.Len())
}

func TestQueueDropsRejected(t *testing.T) {
	q := NewQueue(1000, 10, 4)
	link := &fakeLink{err: errors.New("payload too large")}
	require.NoError(t, q.Push(GetRegister(1, 1)))

	_, out, err := q.Drain(time.Now(), link)
	assert.Equal(t, Dropped, out)
	assert.Error(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePaced(t *testing.T) {
	q := NewQueue(1, 1, 4)
	link := &fakeLink{}
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(GetRegister(1, uint16(i))))
	}

	t0 := time.Now()
	_, out, _ := q.Drain(t0, link)
	assert.Equal(t, Appended, out)
	_, out, _ = q.Drain(t0.Add(100*time.Millisecond), link)
	assert.Equal(t, Idle, out)
	_, out, _ = q.Drain(t0.Add(1100*time.Millisecond), link)
	assert.Equal(t, Appended, out)
	assert.Equal(t, 1, q.Len())
}
