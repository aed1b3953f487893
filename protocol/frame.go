package protocol

import "encoding/binary"

// Header is the fixed 11-byte prefix shared by every frame.
// Multi-byte fields are little-endian on the wire.
type Header struct {
	Size   uint8 // bytes following the size field
	Type   MsgType
	Source uint32
	Dest   uint32
	MsgNum uint8
}

// Len returns the total frame length described by the size field
func (h Header) Len() int {
	return int(h.Size) + 1
}

func (h Header) put(b []byte) {
	b[PositionSize] = h.Size
	b[PositionType] = uint8(h.Type)
	binary.LittleEndian.PutUint32(b[PositionSource:], h.Source)
	binary.LittleEndian.PutUint32(b[PositionDest:], h.Dest)
	b[PositionMsgNum] = h.MsgNum
}

// FrameHeader returns the header, satisfying Frame
func (h Header) FrameHeader() Header {
	return h
}

// Frame is implemented by Ack, Data and Command
type Frame interface {
	FrameHeader() Header
}

// DecodeHeader parses the header of b. Only the size field is validated against
// the buffer; the message type is returned as-is for the caller to judge.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortFrame
	}
	h := Header{
		Size:   b[PositionSize],
		Type:   MsgType(b[PositionType]),
		Source: binary.LittleEndian.Uint32(b[PositionSource:]),
		Dest:   binary.LittleEndian.Uint32(b[PositionDest:]),
		MsgNum: b[PositionMsgNum],
	}
	if h.Len() > len(b) {
		return Header{}, ErrSizeMismatch
	}
	if h.Size < headerRemainder {
		return Header{}, ErrBadSize
	}
	return h, nil
}

// Ack acknowledges the frame numbered AckNum
type Ack struct {
	Header
	AckNum uint8
}

// NewAck builds an acknowledge from src to dst for message number ackNum
func NewAck(src, dst uint32, ackNum uint8) Ack {
	return Ack{
		Header: Header{
			Size:   AckFrameSize - 1,
			Type:   MsgAck,
			Source: src,
			Dest:   dst,
		},
		AckNum: ackNum,
	}
}

// Encode writes the frame into buf and returns its length
func (a Ack) Encode(buf []byte) (int, error) {
	if len(buf) < AckFrameSize {
		return 0, ErrBufferTooSmall
	}
	h := a.Header
	h.Size = AckFrameSize - 1
	h.Type = MsgAck
	h.put(buf)
	buf[PositionPayload] = a.AckNum
	return AckFrameSize, nil
}

// DecodeAck parses an acknowledge frame
func DecodeAck(b []byte) (Ack, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Ack{}, err
	}
	if h.Type != MsgAck {
		return Ack{}, ErrWrongType
	}
	if h.Len() < AckFrameSize {
		return Ack{}, ErrBadSize
	}
	return Ack{Header: h, AckNum: b[PositionPayload]}, nil
}

// Data carries an opaque application payload of up to MaxPayloadSize bytes
type Data struct {
	Header
	Payload []byte
}

// NewData builds a data frame. The payload must hold 1..MaxPayloadSize bytes.
func NewData(src, dst uint32, msgNum uint8, payload []byte) (Data, error) {
	if len(payload) == 0 {
		return Data{}, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadSize {
		return Data{}, ErrPayloadTooLarge
	}
	return Data{
		Header: Header{
			Size:   uint8(headerRemainder + len(payload)),
			Type:   MsgData,
			Source: src,
			Dest:   dst,
			MsgNum: msgNum,
		},
		Payload: payload,
	}, nil
}

// Encode writes the frame into buf and returns its length
func (d Data) Encode(buf []byte) (int, error) {
	if len(d.Payload) > MaxPayloadSize {
		return 0, ErrPayloadTooLarge
	}
	n := HeaderSize + len(d.Payload)
	if len(buf) < n {
		return 0, ErrBufferTooSmall
	}
	h := d.Header
	h.Size = uint8(n - 1)
	h.Type = MsgData
	h.put(buf)
	copy(buf[PositionPayload:], d.Payload)
	return n, nil
}

// DecodeData parses a data frame. Payload aliases b.
func DecodeData(b []byte) (Data, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Data{}, err
	}
	if h.Type != MsgData {
		return Data{}, ErrWrongType
	}
	payload := b[PositionPayload:h.Len()]
	if len(payload) == 0 {
		return Data{}, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadSize {
		return Data{}, ErrPayloadTooLarge
	}
	return Data{Header: h, Payload: payload}, nil
}

// Command carries a register request or response
type Command struct {
	Header
	Direction Direction
	Code      uint8
	Params    []byte
}

// NewCommand builds a command frame with 1..MaxCommandParams parameter bytes
func NewCommand(src, dst uint32, msgNum uint8, dir Direction, code uint8, params []byte) (Command, error) {
	if len(params) == 0 {
		return Command{}, ErrEmptyPayload
	}
	if len(params) > MaxCommandParams {
		return Command{}, ErrPayloadTooLarge
	}
	return Command{
		Header: Header{
			Size:   uint8(CommandOverheadSize - 1 + len(params)),
			Type:   MsgCommand,
			Source: src,
			Dest:   dst,
			MsgNum: msgNum,
		},
		Direction: dir,
		Code:      code,
		Params:    params,
	}, nil
}

// Encode writes the frame into buf and returns its length
func (c Command) Encode(buf []byte) (int, error) {
	if len(c.Params) > MaxCommandParams {
		return 0, ErrPayloadTooLarge
	}
	n := CommandOverheadSize + len(c.Params)
	if len(buf) < n {
		return 0, ErrBufferTooSmall
	}
	h := c.Header
	h.Size = uint8(n - 1)
	h.Type = MsgCommand
	h.put(buf)
	buf[PositionPayload] = uint8(c.Direction)
	buf[PositionPayload+1] = c.Code
	copy(buf[CommandOverheadSize:], c.Params)
	return n, nil
}

// DecodeCommand parses a command frame. Params aliases b; bytes past the
// seventh parameter are ignored, which keeps older long-form senders readable.
func DecodeCommand(b []byte) (Command, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Command{}, err
	}
	if h.Type != MsgCommand {
		return Command{}, ErrWrongType
	}
	if h.Len() < CommandOverheadSize {
		return Command{}, ErrBadSize
	}
	params := b[CommandOverheadSize:h.Len()]
	if len(params) > MaxCommandParams {
		params = params[:MaxCommandParams]
	}
	return Command{
		Header:    h,
		Direction: Direction(b[PositionPayload]),
		Code:      b[PositionPayload+1],
		Params:    params,
	}, nil
}

// Decode parses any known frame variant
func Decode(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	switch h.Type {
	case MsgAck:
		return DecodeAck(b)
	case MsgData:
		return DecodeData(b)
	case MsgCommand:
		return DecodeCommand(b)
	default:
		return nil, ErrUnknownType
	}
}
