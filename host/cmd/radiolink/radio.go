package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"radiolink/protocol"
	"radiolink/radio"
	"radiolink/radio/lora"
)

var (
	airtimeBytes int
	channelsBaud uint32
)

var airtimeCmd = &cobra.Command{
	Use:   "airtime",
	Short: "Print frame airtimes and receive windows for every baudrate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if airtimeBytes < 0 || airtimeBytes > protocol.MaxFrameSize {
			return fmt.Errorf("frame length must be 0..%d", protocol.MaxFrameSize)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BAUD\tFRAME us\tACK WINDOW us\tDATA WINDOW us\tLBT us\tLBT SAMPLES\tLORA us")
		for _, b := range radio.Baudrates {
			loraUS := "-"
			if m, err := lora.ModulationFor(b); err == nil {
				loraUS = fmt.Sprint(m.AirtimeUS(airtimeBytes))
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%s\n", b,
				radio.AirtimeUS(airtimeBytes, b),
				radio.AckWindowUS(b),
				radio.DataWindowUS(b),
				radio.PreambleBudgetUS(b),
				radio.LBTSampleCount(radio.PreambleBudgetUS(b)),
				loraUS)
		}
		return w.Flush()
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels [band]",
	Short: "Print the channel plan of one band or all bands",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bands := []radio.Band{
			radio.Band433, radio.Band866, radio.Band868G, radio.Band868G1,
			radio.Band868G2, radio.Band868G3, radio.Band868G4, radio.Band915,
		}
		if len(args) == 1 {
			b, err := radio.ParseBand(args[0])
			if err != nil {
				return err
			}
			bands = []radio.Band{b}
		}

		bauds := radio.Baudrates
		if channelsBaud != 0 {
			b, err := radio.ValidateBaudrate(channelsBaud)
			if err != nil {
				return err
			}
			bauds = []radio.Baudrate{b}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BAND\tBAUD\tCHANNELS\tFIRST Hz\tSTEP Hz")
		for _, band := range bands {
			for _, baud := range bauds {
				n := band.Channels(baud)
				if n == 0 {
					continue
				}
				c := radio.Config{Baudrate: baud, Band: band}
				freq, err := c.Frequency()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", band, baud, n, freq, c.ChannelStep())
			}
		}
		return w.Flush()
	},
}

func init() {
	airtimeCmd.Flags().IntVarP(&airtimeBytes, "bytes", "b", protocol.MaxFrameSize, "frame length in bytes")
	channelsCmd.Flags().Uint32Var(&channelsBaud, "baud", 0, "only this baudrate")
}
