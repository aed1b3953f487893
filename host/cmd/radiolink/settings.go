package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"radiolink/radio"
	"radiolink/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or edit a settings flash image",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings record, or the defaults when none is stored",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(store *settings.Store) error {
			st, err := store.LoadOrDefault()
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), st)
			return nil
		})
	},
}

var (
	setReadout  uint32
	setBaudrate uint32
	setBand     string
	setChannel  uint8
	setSyncWord uint16
	setTxPower  int8
	setPA       bool
	setLBTRSSI  int8
)

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change fields of the settings record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(store *settings.Store) error {
			st, err := store.LoadOrDefault()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("readout") {
				st.ReadoutIntervalSec = setReadout
			}
			if f.Changed("baudrate") {
				b, err := radio.ValidateBaudrate(setBaudrate)
				if err != nil {
					return err
				}
				st.Radio.Baudrate = b
			}
			if f.Changed("band") {
				b, err := radio.ParseBand(setBand)
				if err != nil {
					return err
				}
				st.Radio.Band = b
			}
			if f.Changed("channel") {
				st.Radio.Channel = setChannel
			}
			if f.Changed("sync-word") {
				st.Radio.SyncWord = setSyncWord
			}
			if f.Changed("tx-power") {
				st.Radio.TxPower = setTxPower
			}
			if f.Changed("pa") {
				st.Radio.EnablePA = setPA
			}
			if f.Changed("lbt-rssi") {
				st.Radio.LBTRSSI = setLBTRSSI
			}
			if st.ReadoutIntervalSec == 0 {
				return fmt.Errorf("readout interval must be positive")
			}
			if err := st.Radio.Validate(); err != nil {
				return err
			}
			if err := store.Save(st); err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), st)
			return nil
		})
	},
}

func init() {
	f := settingsSetCmd.Flags()
	f.Uint32Var(&setReadout, "readout", 0, "sensor readout interval in seconds")
	f.Uint32Var(&setBaudrate, "baudrate", 0, "radio baudrate")
	f.StringVar(&setBand, "band", "", "frequency band (433, 866, 868g, 868g1..868g4, 915)")
	f.Uint8Var(&setChannel, "channel", 0, "channel number")
	f.Uint16Var(&setSyncWord, "sync-word", 0, "radio sync word")
	f.Int8Var(&setTxPower, "tx-power", 0, "transmit power in dBm")
	f.BoolVar(&setPA, "pa", false, "enable the power amplifier")
	f.Int8Var(&setLBTRSSI, "lbt-rssi", 0, "listen before talk threshold in dBm, 0 for the default")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

func withStore(fn func(*settings.Store) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	sc := cfg.Settings
	flash, err := settings.OpenBoltFlash(sc.Path, sc.Size, sc.EraseSize)
	if err != nil {
		return fmt.Errorf("open %s: %w", sc.Path, err)
	}
	defer flash.Close()

	store, err := settings.NewStore(flash, sc.Page)
	if err != nil {
		return err
	}
	return fn(store)
}

func printSettings(w io.Writer, st settings.Settings) {
	r := st.Radio
	fmt.Fprintf(w, "readout interval: %d s\n", st.ReadoutIntervalSec)
	fmt.Fprintf(w, "baudrate:         %d\n", r.Baudrate)
	fmt.Fprintf(w, "band:             %s\n", r.Band)
	fmt.Fprintf(w, "channel:          %d\n", r.Channel)
	fmt.Fprintf(w, "sync word:        0x%04X\n", r.SyncWord)
	fmt.Fprintf(w, "tx power:         %d dBm\n", r.TxPower)
	fmt.Fprintf(w, "power amplifier:  %t\n", r.EnablePA)
	fmt.Fprintf(w, "lbt threshold:    %d dBm\n", radio.LBTThreshold(r.LBTRSSI))
}
