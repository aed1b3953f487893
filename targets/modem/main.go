//go:build rp2040 || rp2350

// Modem firmware: exposes the SX127x as a radio transport to a host over
// UART0 using the modem serial protocol.
package main

import (
	"machine"
	"time"

	"radiolink/radio"
	"radiolink/radio/lora"
	"radiolink/radio/modem"
	"radiolink/targets/board"
)

const hostBaud = 115200

var uart = machine.UART0

func main() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	uart.Configure(machine.UARTConfig{BaudRate: hostBaud, TX: machine.UART0_TX_PIN, RX: machine.UART0_RX_PIN})

	dev, err := board.NewRadio()
	if err != nil {
		for {
			time.Sleep(time.Second)
		}
	}
	// RSSI offsets follow the default band; the host selects the channel
	transport := lora.New(dev, board.RadioOptions(dev, radio.DefaultConfig().Band))
	bridge := modem.NewBridge(transport, uart)

	buf := make([]byte, 64)
	for {
		n, _ := uart.Read(buf)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		bridge.Feed(buf[:n])
	}
}
