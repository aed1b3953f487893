//go:build rp2040 || rp2350

// Leaf firmware: samples the battery on a schedule, forwards the readings to
// the coordinator and answers register commands.
package main

import (
	"machine"
	"time"

	"radiolink/app/tag"
	"radiolink/core"
	"radiolink/protocol"
	"radiolink/radio/lora"
	"radiolink/sensor"
	"radiolink/settings"
	"radiolink/targets/board"
)

const (
	watchdogMillis = 8000

	// longest sleep between loop passes so the watchdog is fed
	maxNap = 2 * time.Second
)

var (
	button = machine.GPIO20
	led    = machine.LED
)

func main() {
	// clear any watchdog state left from before the reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	store, err := settings.NewStore(machine.Flash, machine.Flash.Size()/machine.Flash.EraseBlockSize()-1)
	if err != nil {
		halt()
	}
	st, err := store.LoadOrDefault()
	if err != nil {
		st = settings.Default()
	}

	dev, err := board.NewRadio()
	if err != nil {
		halt()
	}
	// the flash chip's unique id names this leaf on the link
	unitID, err := protocol.UnitID(machine.DeviceID())
	if err != nil {
		halt()
	}

	opts := board.RadioOptions(dev, st.Radio.Band)
	opts.SenseFailed = func(err error) { println("carrier sense:", err.Error()) }
	transport := lora.New(dev, opts)
	engine := core.New(transport, core.Config{Role: core.RoleLeaf, ID: unitID, Radio: st.Radio})
	engine.Trace().SetWriter(func(line string) { println(line) })

	unit := tag.New(tag.Config{
		Link:     engine,
		Monitor:  sensor.NewBatteryMonitor(board.NewSampler(), board.Seconds),
		Store:    store,
		Settings: st,
		Clock:    board.Millis,
		Reboot:   reboot,
	})

	button.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	button.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		unit.ForceReadout()
	})

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogMillis})
	machine.Watchdog.Start()

	for {
		machine.Watchdog.Update()
		nap, err := step(unit)
		if err != nil {
			halt()
		}
		if nap <= 0 {
			continue
		}
		if nap > maxNap {
			nap = maxNap
		}
		led.Low()
		select {
		case <-unit.Wake():
		case <-time.After(nap):
		}
		led.High()
	}
}

// step runs one loop pass, surviving a panic in a handler
func step(unit *tag.Tag) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = 0, nil
		}
	}()
	return unit.Step()
}

func reboot() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}

// halt blinks the LED until the watchdog or the user resets the board
func halt() {
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
