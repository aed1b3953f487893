// Package modem carries the radio transport over a serial byte stream. The
// host side implements radio.Transport by writing commands to the link; the
// device side Bridge decodes them and drives a local radio.
package modem

import (
	"encoding/binary"
	"errors"

	"radiolink/protocol"
	"radiolink/radio"
)

// Message framing: len | cmd | payload | crc16 (big-endian) | sync
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 80
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionCmd = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
)

// Host to modem commands
const (
	CmdOpen    uint8 = 0x01
	CmdClose   uint8 = 0x02
	CmdStandby uint8 = 0x03
	CmdRxOn    uint8 = 0x04
	CmdRxOff   uint8 = 0x05
	CmdTx      uint8 = 0x06
)

// Modem to host notifications
const (
	NotifyPacket uint8 = 0x81
	NotifyTxDone uint8 = 0x82
	NotifyRxDone uint8 = 0x83
)

const (
	configSize   = 10
	rxOnSize     = 5
	txHeaderSize = 5
	packetHeader = 5

	flagPA                = 1 << 0
	flagContinueOnTimeout = 1 << 0
	flagContinueOnReceive = 1 << 1
)

var (
	ErrMessageTooLong = errors.New("modem: message too long")
	ErrShortPayload   = errors.New("modem: payload too short")
)

// Message is one decoded command or notification. Payload aliases the
// decoder's buffer and is only valid inside the callback.
type Message struct {
	Cmd     uint8
	Payload []byte
}

// EncodeMessage frames the body written by fn behind cmd
func EncodeMessage(out *protocol.ScratchOutput, cmd uint8, fn func(out protocol.OutputBuffer)) ([]byte, error) {
	out.Reset()
	out.Output(0, cmd)
	if fn != nil {
		fn(out)
	}

	n := out.CurPosition() + MessageTrailerSize
	if out.Overflowed() || n > MessageLengthMax {
		return nil, ErrMessageTooLong
	}
	out.Update(MessagePositionLen, uint8(n))

	crc := protocol.CRC16(out.DataSince(0))
	out.Output(uint8(crc>>8), uint8(crc), MessageValueSync)
	return out.Result(), nil
}

// Decoder splits a byte stream into messages, resynchronising on the sync
// byte after a length, sync or CRC error
type Decoder struct {
	in       *protocol.FifoBuffer
	desynced bool
	errors   uint32
}

// NewDecoder creates a decoder able to hold a few messages of backlog
func NewDecoder() *Decoder {
	return &Decoder{in: protocol.NewFifoBuffer(4*MessageLengthMax + 1)}
}

// Errors returns how many times the stream lost synchronisation
func (d *Decoder) Errors() uint32 {
	return d.errors
}

// Feed appends data and hands every complete message to fn
func (d *Decoder) Feed(data []byte, fn func(Message)) {
	for len(data) > 0 {
		n := d.in.Write(data)
		data = data[n:]
		d.parse(fn)
		if n == 0 {
			// Unparseable backlog filling the buffer
			d.in.Reset()
			d.desync()
		}
	}
}

// Reset drops buffered bytes
func (d *Decoder) Reset() {
	d.in.Reset()
	d.desynced = false
}

func (d *Decoder) desync() {
	if !d.desynced {
		d.errors++
	}
	d.desynced = true
}

func (d *Decoder) parse(fn func(Message)) {
	data := d.in.Data()

	for len(data) > 0 {
		if d.desynced {
			pos := -1
			for i, b := range data {
				if b == MessageValueSync {
					pos = i
					break
				}
			}
			if pos < 0 {
				data = nil
				break
			}
			data = data[pos+1:]
			d.desynced = false
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			d.desync()
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}
		crc := binary.BigEndian.Uint16(data[n-MessageTrailerCRC:])
		if crc != protocol.CRC16(data[:n-MessageTrailerSize]) {
			d.desync()
			continue
		}

		fn(Message{Cmd: data[MessagePositionCmd], Payload: data[MessageHeaderSize : n-MessageTrailerSize]})
		data = data[n:]
	}

	if consumed := d.in.Available() - len(data); consumed > 0 {
		d.in.Pop(consumed)
	}
}

func putUint32(out protocol.OutputBuffer, v uint32) {
	out.Output(uint8(v), uint8(v>>8), uint8(v>>16), uint8(v>>24))
}

func putConfig(out protocol.OutputBuffer, cfg radio.Config) {
	putUint32(out, uint32(cfg.Baudrate))
	var flags uint8
	if cfg.EnablePA {
		flags |= flagPA
	}
	out.Output(uint8(cfg.Band), cfg.Channel, uint8(cfg.SyncWord), uint8(cfg.SyncWord>>8), uint8(cfg.TxPower), flags)
}

func decodeConfig(p []byte) (radio.Config, error) {
	if len(p) < configSize {
		return radio.Config{}, ErrShortPayload
	}
	return radio.Config{
		Baudrate: radio.Baudrate(binary.LittleEndian.Uint32(p)),
		Band:     radio.Band(p[4]),
		Channel:  p[5],
		SyncWord: binary.LittleEndian.Uint16(p[6:]),
		TxPower:  int8(p[8]),
		EnablePA: p[9]&flagPA != 0,
	}, nil
}

type rxOn struct {
	timeoutUS         uint32
	continueOnTimeout bool
	continueOnReceive bool
}

func putRxOn(out protocol.OutputBuffer, r rxOn) {
	putUint32(out, r.timeoutUS)
	var flags uint8
	if r.continueOnTimeout {
		flags |= flagContinueOnTimeout
	}
	if r.continueOnReceive {
		flags |= flagContinueOnReceive
	}
	out.Output(flags)
}

func decodeRxOn(p []byte) (rxOn, error) {
	if len(p) < rxOnSize {
		return rxOn{}, ErrShortPayload
	}
	return rxOn{
		timeoutUS:         binary.LittleEndian.Uint32(p),
		continueOnTimeout: p[4]&flagContinueOnTimeout != 0,
		continueOnReceive: p[4]&flagContinueOnReceive != 0,
	}, nil
}

type tx struct {
	lbtRSSI      int8
	lbtTimeoutUS uint32
	frame        []byte
}

func putTx(out protocol.OutputBuffer, t tx) {
	out.Output(uint8(t.lbtRSSI))
	putUint32(out, t.lbtTimeoutUS)
	out.Output(t.frame...)
}

func decodeTx(p []byte) (tx, error) {
	if len(p) <= txHeaderSize {
		return tx{}, ErrShortPayload
	}
	return tx{
		lbtRSSI:      int8(p[0]),
		lbtTimeoutUS: binary.LittleEndian.Uint32(p[1:]),
		frame:        p[txHeaderSize:],
	}, nil
}

func putPacket(out protocol.OutputBuffer, p radio.Packet) {
	out.Output(uint8(p.RSSI))
	putUint32(out, p.Timestamp)
	out.Output(p.Data...)
}

// decodePacket leaves Data aliasing p
func decodePacket(p []byte) (radio.Packet, error) {
	if len(p) <= packetHeader {
		return radio.Packet{}, ErrShortPayload
	}
	return radio.Packet{
		RSSI:      int8(p[0]),
		Timestamp: binary.LittleEndian.Uint32(p[1:]),
		Data:      p[packetHeader:],
	}, nil
}

func putBool(out protocol.OutputBuffer, v bool) {
	if v {
		out.Output(1)
	} else {
		out.Output(0)
	}
}

func decodeBool(p []byte) (bool, error) {
	if len(p) < 1 {
		return false, ErrShortPayload
	}
	return p[0] != 0, nil
}
