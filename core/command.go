package core

import (
	"sync"

	"radiolink/protocol"
)

// CommandHandler handles a request's parameters. Anything written to resp is
// sent back as the response parameters; writing nothing sends no response.
type CommandHandler func(params []byte, resp protocol.OutputBuffer) error

// Command is a registered command code
type Command struct {
	Code    uint8
	Name    string
	Handler CommandHandler
}

// CommandRegistry maps command codes to handlers
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint8]*Command
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint8]*Command),
	}
}

// Register adds or replaces the handler for code
func (r *CommandRegistry) Register(code uint8, name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[code] = &Command{Code: code, Name: name, Handler: handler}
}

// GetCommand retrieves a command by code
func (r *CommandRegistry) GetCommand(code uint8) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[code]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for code
func (r *CommandRegistry) Dispatch(code uint8, params []byte, resp protocol.OutputBuffer) error {
	cmd, ok := r.GetCommand(code)
	if !ok || cmd.Handler == nil {
		return commandError{code: code}
	}
	return cmd.Handler(params, resp)
}

type commandError struct {
	code uint8
}

func (e commandError) Error() string {
	return ErrUnknownCommand.Error() + " " + itoa(int(e.code))
}

func (e commandError) Unwrap() error {
	return ErrUnknownCommand
}
