package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"radiolink/host/config"
	"radiolink/host/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "radiolink",
	Short:         "Star topology sub-GHz radio link: gateway and tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./radiolink.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(gatewayCmd, simulateCmd, airtimeCmd, channelsCmd, settingsCmd)
}

// setup loads the configuration and builds the logger every command shares
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, logging.New(cfg.Logging), nil
}
