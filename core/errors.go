package core

import "errors"

var (
	// ErrMailboxFull is returned when a message is still waiting for its
	// acknowledge
	ErrMailboxFull = errors.New("core: outgoing message pending")

	// ErrUnknownCommand is returned for a command code nobody registered
	ErrUnknownCommand = errors.New("core: unknown command")
)
