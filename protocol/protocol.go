// Package protocol implements the radio link wire format
package protocol

// Version represents the radiolink firmware version
const Version = "0.1.0"

// Frame layout constants
const (
	HeaderSize       = 11 // size(1) msg_type(1) source(4) dest(4) msg_num(1)
	MaxPayloadSize   = 50 // Data frame payload limit
	MaxFrameSize     = HeaderSize + MaxPayloadSize
	MaxCommandParams = 7

	AckFrameSize        = HeaderSize + 1
	CommandOverheadSize = HeaderSize + 2 // direction + command code

	// size field counts the bytes after itself
	headerRemainder = HeaderSize - 1

	PositionSize    = 0
	PositionType    = 1
	PositionSource  = 2
	PositionDest    = 6
	PositionMsgNum  = 10
	PositionPayload = HeaderSize
)

// BroadcastID is the coordinator's own identifier and the destination a leaf
// uses before it knows which coordinator is listening
const BroadcastID uint32 = 0xFFFFFFFF

// MsgType tags the frame variant
type MsgType uint8

const (
	MsgAck     MsgType = 1
	MsgData    MsgType = 2
	MsgCommand MsgType = 3
)

func (t MsgType) String() string {
	switch t {
	case MsgAck:
		return "ack"
	case MsgData:
		return "data"
	case MsgCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Direction of a command frame
type Direction uint8

const (
	DirRequest  Direction = 0
	DirResponse Direction = 1
)

// Command codes understood by leaf units
const (
	CmdGetRegister uint8 = 1
	CmdSetRegister uint8 = 2
)
