package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"radiolink/core"
	"radiolink/host/gateway"
	"radiolink/host/serial"
	"radiolink/radio/modem"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the coordinator over a serial radio modem",
	Long: `Runs the coordinator link engine on the radio modem attached to the
configured serial port. Leaf reports are printed to stdout, GETREG:<id>,<reg>
and SETREG:<id>,<reg>,<value> lines read from stdin are sent to the leaves,
and the node registry, link status and metrics are served over HTTP.`,
	RunE: runGateway,
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	rc, err := cfg.RadioSettings()
	if err != nil {
		return err
	}

	port, err := serial.Open(&serial.Config{
		Device:      cfg.Modem.Device,
		Baud:        cfg.Modem.Baud,
		ReadTimeout: cfg.Modem.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("open modem: %w", err)
	}
	transport := modem.NewTransport(port, log)

	registry, err := gateway.OpenRegistry(cfg.Gateway.DBPath)
	if err != nil {
		transport.Close()
		return fmt.Errorf("open registry: %w", err)
	}
	defer registry.Close()

	engine := core.New(transport, core.Config{Role: core.RoleCoordinator, Radio: rc})
	promReg := gateway.NewRegistry()
	gw := gateway.New(gateway.Config{
		Engine:       engine,
		Queue:        gateway.NewQueue(cfg.Gateway.CommandRate, cfg.Gateway.CommandBurst, gateway.DefaultQueueSize),
		Registry:     registry,
		Metrics:      gateway.NewMetrics(promReg),
		Console:      cmd.OutOrStdout(),
		Log:          log.Named("gateway"),
		NodeTTL:      cfg.Gateway.NodeTTL,
		PollInterval: cfg.Gateway.PollInterval,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := gateway.NewHTTPServer(cfg.Gateway.HTTPAddr, gateway.NewRouter(gw, gateway.MetricsHandler(promReg)))
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()
	go func() {
		if err := gw.ReadConsole(ctx, cmd.InOrStdin()); err != nil {
			log.Warn("console closed", zap.Error(err))
		}
	}()

	log.Info("gateway started",
		zap.String("device", cfg.Modem.Device),
		zap.Stringer("band", rc.Band),
		zap.Uint8("channel", rc.Channel),
		zap.Uint32("baudrate", uint32(rc.Baudrate)))
	runErr := gw.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("gateway stopped", zap.Any("link", engine.Stats()), zap.Any("modem", transport.Stats()))
	return runErr
}
