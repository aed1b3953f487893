package core

import "radiolink/radio"

type rxWindow struct {
	timeoutUS         uint32
	continueOnTimeout bool
	continueOnReceive bool
}

type txCall struct {
	frame     []byte
	lbtRSSI   int8
	lbtBudget uint32
}

// mockTransport records calls. Completions are raised by the test.
type mockTransport struct {
	h radio.Handler

	openErr   error
	sendErr   error
	enableErr error

	opened   int
	closed   int
	standbys int
	disables int
	windows  []rxWindow
	sends    []txCall
	rxActive bool
	lastOpen radio.Config
}

func (m *mockTransport) SetHandler(h radio.Handler) { m.h = h }

func (m *mockTransport) Open(cfg radio.Config) error {
	m.lastOpen = cfg
	if m.openErr != nil {
		return m.openErr
	}
	m.opened++
	return nil
}

func (m *mockTransport) Close() error {
	m.closed++
	return nil
}

func (m *mockTransport) Standby() error {
	m.standbys++
	return nil
}

func (m *mockTransport) EnableReceive(timeoutUS uint32, cot, cor bool) error {
	if m.enableErr != nil {
		return m.enableErr
	}
	m.windows = append(m.windows, rxWindow{timeoutUS, cot, cor})
	m.rxActive = true
	return nil
}

func (m *mockTransport) DisableReceive() {
	m.disables++
}

func (m *mockTransport) Send(frame []byte, lbtRSSI int8, lbtTimeoutUS uint32) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sends = append(m.sends, txCall{append([]byte(nil), frame...), lbtRSSI, lbtTimeoutUS})
	return nil
}

// endWindow raises the receive completion, as a timeout or after DisableReceive
func (m *mockTransport) endWindow(dataReceived bool) {
	m.rxActive = false
	m.h.ReceiveCompleted(dataReceived)
}

func (m *mockTransport) sendDone(ok bool) {
	m.h.SendCompleted(ok)
}

func (m *mockTransport) deliver(frame []byte, rssi int8) {
	m.h.MessageReceived(radio.Packet{RSSI: rssi, Data: frame})
}

func (m *mockTransport) lastSend() []byte {
	if len(m.sends) == 0 {
		return nil
	}
	return m.sends[len(m.sends)-1].frame
}
