package core

import (
	"errors"
	"testing"

	"radiolink/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	registry.Register(protocol.CmdGetRegister, "get_register", func(params []byte, resp protocol.OutputBuffer) error {
		called = true
		resp.Output(params...)
		return nil
	})

	cmd, ok := registry.GetCommand(protocol.CmdGetRegister)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "get_register" {
		t.Errorf("Expected command name 'get_register', got '%s'", cmd.Name)
	}

	out := protocol.NewScratchOutput()
	if err := registry.Dispatch(protocol.CmdGetRegister, []byte{1, 0}, out); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}
	if got := out.Result(); len(got) != 2 || got[0] != 1 {
		t.Errorf("Unexpected response %v", got)
	}

	err := registry.Dispatch(99, nil, out)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if err != nil && err.Error() != "core: unknown command 99" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestCommandRegistryReplace(t *testing.T) {
	registry := NewCommandRegistry()

	first := 0
	second := 0
	registry.Register(1, "a", func([]byte, protocol.OutputBuffer) error { first++; return nil })
	registry.Register(1, "b", func([]byte, protocol.OutputBuffer) error { second++; return nil })

	if registry.Count() != 1 {
		t.Errorf("Expected 1 command, got %d", registry.Count())
	}
	_ = registry.Dispatch(1, nil, protocol.NewScratchOutput())
	if first != 0 || second != 1 {
		t.Errorf("Expected the later registration to win, got %d/%d", first, second)
	}
}

func TestCommandHandlerError(t *testing.T) {
	registry := NewCommandRegistry()
	boom := errors.New("boom")
	registry.Register(2, "set_register", func([]byte, protocol.OutputBuffer) error { return boom })

	if err := registry.Dispatch(2, nil, protocol.NewScratchOutput()); !errors.Is(err, boom) {
		t.Errorf("Expected handler error, got %v", err)
	}
}

func TestItoa(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-42, "-42"},
		{4294967295, "4294967295"},
	}
	for _, tt := range tests {
		if got := itoa(tt.in); got != tt.want {
			t.Errorf("itoa(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := utoa(0xFFFFFFFF); got != "4294967295" {
		t.Errorf("utoa overflowed: %q", got)
	}
}
