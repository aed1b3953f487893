package core

// State is a link engine state
type State uint32

const (
	StateInit State = iota
	StateIdle
	StateReceive
	StateReceiving
	StateSendingAck
	StateProcessMessage
	StateSend
	StateSending
	StateWaitingAck
)

var stateNames = [...]string{
	StateInit:           "init",
	StateIdle:           "idle",
	StateReceive:        "receive",
	StateReceiving:      "receiving",
	StateSendingAck:     "sending-ack",
	StateProcessMessage: "process-message",
	StateSend:           "send",
	StateSending:        "sending",
	StateWaitingAck:     "waiting-ack",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
