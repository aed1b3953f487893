package gateway

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"radiolink/protocol"
	"radiolink/sensor"
)

var (
	ErrNotCommand = errors.New("gateway: not a console command")
	ErrBadArgs    = errors.New("gateway: malformed command arguments")
)

const (
	getRegPrefix = "GETREG:"
	setRegPrefix = "SETREG:"
)

// Request is a register operation addressed to one leaf
type Request struct {
	Node  uint32 `json:"node"`
	Code  uint8  `json:"code"`
	Reg   uint16 `json:"reg"`
	Value uint32 `json:"value,omitempty"`
}

// GetRegister builds a read of reg on node
func GetRegister(node uint32, reg uint16) Request {
	return Request{Node: node, Code: protocol.CmdGetRegister, Reg: reg}
}

// SetRegister builds a write of value to reg on node
func SetRegister(node uint32, reg uint16, value uint32) Request {
	return Request{Node: node, Code: protocol.CmdSetRegister, Reg: reg, Value: value}
}

// Params encodes the command parameters: reg u16, plus value u32 for a set
func (r Request) Params() []byte {
	if r.Code == protocol.CmdSetRegister {
		b := make([]byte, 6)
		binary.LittleEndian.PutUint16(b, r.Reg)
		binary.LittleEndian.PutUint32(b[2:], r.Value)
		return b
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, r.Reg)
	return b
}

func (r Request) String() string {
	if r.Code == protocol.CmdSetRegister {
		return fmt.Sprintf("set node %d reg %d = %d", r.Node, r.Reg, r.Value)
	}
	return fmt.Sprintf("get node %d reg %d", r.Node, r.Reg)
}

// ParseConsoleLine understands GETREG:<id>,<reg> and SETREG:<id>,<reg>,<val>.
// The command may follow other text on the line.
func ParseConsoleLine(line string) (Request, error) {
	if i := strings.Index(line, getRegPrefix); i >= 0 {
		args, err := splitArgs(line[i+len(getRegPrefix):], 2)
		if err != nil {
			return Request{}, err
		}
		id, reg, err := nodeAndReg(args)
		if err != nil {
			return Request{}, err
		}
		return GetRegister(id, reg), nil
	}
	if i := strings.Index(line, setRegPrefix); i >= 0 {
		args, err := splitArgs(line[i+len(setRegPrefix):], 3)
		if err != nil {
			return Request{}, err
		}
		id, reg, err := nodeAndReg(args)
		if err != nil {
			return Request{}, err
		}
		val, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return Request{}, fmt.Errorf("%w: value %q", ErrBadArgs, args[2])
		}
		return SetRegister(id, reg, uint32(val)), nil
	}
	return Request{}, ErrNotCommand
}

func splitArgs(s string, n int) ([]string, error) {
	args := strings.Split(strings.TrimSpace(s), ",")
	if len(args) != n {
		return nil, fmt.Errorf("%w: want %d fields, got %d", ErrBadArgs, n, len(args))
	}
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	return args, nil
}

func nodeAndReg(args []string) (uint32, uint16, error) {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: node %q", ErrBadArgs, args[0])
	}
	reg, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: register %q", ErrBadArgs, args[1])
	}
	return uint32(id), uint16(reg), nil
}

// FormatData renders a data frame for the console. Payloads long enough to
// hold a battery reading are shown decoded.
func FormatData(node uint32, rssi int8, payload []byte) string {
	r, err := sensor.DecodeBatteryReading(payload)
	if err != nil {
		return fmt.Sprintf("[%d dBm] Sensor %d: Data - %s", rssi, node, hex.EncodeToString(payload))
	}
	return fmt.Sprintf("[%d dBm] Sensor %d: Timestamp - %d, Voltage - %d.%03d V, Temperature - %d C",
		rssi, node, r.Timestamp, r.MilliVolts/1000, r.MilliVolts%1000, r.TemperatureC)
}

// Response is a decoded register command response
type Response struct {
	Code  uint8
	Reg   uint16
	Value uint32 // get only
	OK    bool
}

// DecodeResponse parses the parameters of a get or set response
func DecodeResponse(msg protocol.Command) (Response, error) {
	p := msg.Params
	switch msg.Code {
	case protocol.CmdGetRegister:
		if len(p) < 7 {
			return Response{}, ErrBadArgs
		}
		return Response{
			Code:  msg.Code,
			Reg:   binary.LittleEndian.Uint16(p),
			Value: binary.LittleEndian.Uint32(p[2:]),
			OK:    p[6] != 0,
		}, nil
	case protocol.CmdSetRegister:
		if len(p) < 3 {
			return Response{}, ErrBadArgs
		}
		return Response{Code: msg.Code, Reg: binary.LittleEndian.Uint16(p), OK: p[2] != 0}, nil
	}
	return Response{}, ErrNotCommand
}

func okText(ok bool) string {
	if ok {
		return "OK"
	}
	return "Failed"
}

// FormatResponse renders a register response for the console
func FormatResponse(node uint32, rssi int8, r Response) string {
	if r.Code == protocol.CmdGetRegister {
		return fmt.Sprintf("[%d dBm] Sensor %d: Get register (%d) response - %s, Value - %d",
			rssi, node, r.Reg, okText(r.OK), r.Value)
	}
	return fmt.Sprintf("[%d dBm] Sensor %d: Set register (%d) response - %s",
		rssi, node, r.Reg, okText(r.OK))
}
