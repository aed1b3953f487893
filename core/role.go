package core

import (
	"radiolink/protocol"
	"radiolink/radio"
)

// Role selects the coordinator or leaf variant of the state machine
type Role uint8

const (
	// RoleCoordinator always listens and answers leaves
	RoleCoordinator Role = iota
	// RoleLeaf initiates exchanges and powers its radio down between them
	RoleLeaf
)

func (r Role) String() string {
	if r == RoleCoordinator {
		return "coordinator"
	}
	return "leaf"
}

// policy holds the transitions that differ between roles
type policy struct {
	// state entered from Send when the mailbox turned out empty
	sendEmpty State
	// state entered when the acknowledge window closes
	afterAck State
	// send a queued message at once when its destination just spoke to us
	piggyback bool
	// stop the radio when idle with nothing to send
	standbyWhenIdle bool
	// arguments of the Receive state's window
	receiveWindow func(baud radio.Baudrate) (timeoutUS uint32, continueOnTimeout, continueOnReceive bool)
}

var policies = [...]policy{
	RoleCoordinator: {
		sendEmpty: StateReceive,
		afterAck:  StateIdle,
		piggyback: true,
		receiveWindow: func(radio.Baudrate) (uint32, bool, bool) {
			return 0, true, true
		},
	},
	RoleLeaf: {
		sendEmpty:       StateIdle,
		afterAck:        StateReceive,
		standbyWhenIdle: true,
		receiveWindow: func(baud radio.Baudrate) (uint32, bool, bool) {
			return radio.DataWindowUS(baud), true, false
		},
	},
}

func (r Role) unitID(configured uint32) uint32 {
	if r == RoleCoordinator {
		return protocol.BroadcastID
	}
	return configured
}
