package core

import "radiolink/protocol"

// mailbox holds the single outgoing message. A zero size byte marks it empty.
// The encoded bytes stay untouched until acknowledged so every retry sends
// the same msg_num.
type mailbox struct {
	buf    [protocol.MaxFrameSize]byte
	msgNum uint8
}

func (m *mailbox) occupied() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return m.buf[protocol.PositionSize] != 0
}

func (m *mailbox) putData(src, dst uint32, payload []byte) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if m.buf[protocol.PositionSize] != 0 {
		return ErrMailboxFull
	}
	d, err := protocol.NewData(src, dst, m.msgNum, payload)
	if err != nil {
		return err
	}
	if _, err := d.Encode(m.buf[:]); err != nil {
		return err
	}
	m.msgNum++
	return nil
}

func (m *mailbox) putCommand(src, dst uint32, dir protocol.Direction, code uint8, params []byte) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if m.buf[protocol.PositionSize] != 0 {
		return ErrMailboxFull
	}
	c, err := protocol.NewCommand(src, dst, m.msgNum, dir, code, params)
	if err != nil {
		return err
	}
	if _, err := c.Encode(m.buf[:]); err != nil {
		return err
	}
	m.msgNum++
	return nil
}

// frame returns the queued bytes or nil. The slice aliases the mailbox; only
// the engine loop clears it, so it stays valid until the loop moves on.
func (m *mailbox) frame() []byte {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	size := int(m.buf[protocol.PositionSize])
	if size == 0 {
		return nil
	}
	return m.buf[:size+1]
}

// destination returns the receiver of the queued message
func (m *mailbox) destination() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if m.buf[protocol.PositionSize] == 0 {
		return 0, false
	}
	h, err := protocol.DecodeHeader(m.buf[:])
	if err != nil {
		return 0, false
	}
	return h.Dest, true
}

// acknowledge empties the mailbox when ackNum matches the queued msg_num
func (m *mailbox) acknowledge(ackNum uint8) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if m.buf[protocol.PositionSize] == 0 || m.buf[protocol.PositionMsgNum] != ackNum {
		return false
	}
	m.buf[protocol.PositionSize] = 0
	return true
}
