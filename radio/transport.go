// Package radio defines the contract between the link engine and a radio
// transport, together with the airtime and listen-before-talk arithmetic that
// sizes every receive window and channel check.
package radio

// Packet is a frame handed up by the transport. Data is owned by the receiver.
type Packet struct {
	RSSI      int8
	Timestamp uint32
	Data      []byte
}

// Handler receives transport events. Implementations are called from
// interrupt-like context and must only copy data or set flags.
type Handler interface {
	// MessageReceived reports a frame caught during a receive window
	MessageReceived(p Packet)

	// SendCompleted reports the end of a transmission
	SendCompleted(ok bool)

	// ReceiveCompleted reports the end of a receive window, whether it
	// timed out or was ended by DisableReceive
	ReceiveCompleted(dataReceived bool)
}

// Transport is the radio as seen by the link engine. All calls return
// promptly; completions arrive through the Handler.
type Transport interface {
	// SetHandler installs the event sink. It must be called before Open.
	SetHandler(h Handler)

	// Open configures and powers the radio
	Open(cfg Config) error

	// Close releases the radio. Pending completions are discarded.
	Close() error

	// Standby stops all activity and powers the radio down while keeping
	// its configuration. A window cut short here raises no completion.
	Standby() error

	// EnableReceive starts a receive window of timeoutUS microseconds;
	// zero listens until DisableReceive. continueOnTimeout lets a frame
	// whose reception began before the deadline finish. continueOnReceive
	// keeps the window open after a frame has been delivered.
	EnableReceive(timeoutUS uint32, continueOnTimeout, continueOnReceive bool) error

	// DisableReceive ends the active window. The window's completion event
	// is raised exactly once; with no active window it does nothing.
	DisableReceive()

	// Send transmits frame. A non-zero lbtTimeoutUS runs carrier sense
	// first; the frame goes out when the budget is spent even if the
	// channel never cleared. frame is only borrowed for the duration of
	// the call.
	Send(frame []byte, lbtRSSI int8, lbtTimeoutUS uint32) error
}
