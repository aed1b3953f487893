package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"radiolink/app/tag"
	"radiolink/core"
	"radiolink/host/gateway"
	"radiolink/radio"
	"radiolink/radio/sim"
	"radiolink/sensor"
	"radiolink/settings"
)

const firstLeafID = 1001

var (
	simLeaves   int
	simDuration time.Duration
	simLoss     float64
	simReadout  uint32
	simHTTP     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a gateway and a set of leaf tags on a simulated channel",
	Long: `Starts a coordinator gateway and the configured number of leaf tags on an
in-memory radio channel with real airtime, then prints what the gateway
received. Console commands on stdin reach the simulated leaves, whose ids
start at 1001.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVarP(&simLeaves, "leaves", "n", 0, "number of leaves (default simulate.leaves)")
	f.DurationVarP(&simDuration, "duration", "d", 0, "run time (default simulate.duration)")
	f.Float64Var(&simLoss, "loss", -1, "percentage of frames lost in flight (default simulate.lossPercent)")
	f.Uint32Var(&simReadout, "readout", 0, "leaf readout interval in seconds (default simulate.readoutInterval)")
	f.StringVar(&simHTTP, "http", "", "serve the gateway API on this address")
}

// simSampler reports a slowly draining battery
type simSampler struct {
	on bool
	mv uint32
}

func (s *simSampler) Enable()  { s.on = true }
func (s *simSampler) Disable() { s.on = false }

func (s *simSampler) Voltage() (uint32, bool) {
	if s.mv > 2200 {
		s.mv--
	}
	return s.mv, s.on
}

func (s *simSampler) Temperature() (int32, bool) { return 21, s.on }

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	sc := cfg.Simulate
	if simLeaves > 0 {
		sc.Leaves = simLeaves
	}
	if simDuration > 0 {
		sc.Duration = simDuration
	}
	if simLoss >= 0 {
		sc.LossPercent = simLoss
	}
	if simReadout > 0 {
		sc.ReadoutInterval = simReadout
	}
	rc, err := cfg.RadioSettings()
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "radiolink-sim")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	registry, err := gateway.OpenRegistry(filepath.Join(dir, "nodes.db"))
	if err != nil {
		return err
	}
	defer registry.Close()

	medium := sim.NewMedium(log.Named("medium"))
	if sc.LossPercent > 0 {
		medium.SetLoss(func(_, _ string, _ []byte) bool {
			return rand.Float64()*100 < sc.LossPercent
		})
	}

	engine := core.New(medium.NewRadio("gateway", -40), core.Config{Role: core.RoleCoordinator, Radio: rc})
	promReg := gateway.NewRegistry()
	gw := gateway.New(gateway.Config{
		Engine:   engine,
		Queue:    gateway.NewQueue(cfg.Gateway.CommandRate, cfg.Gateway.CommandBurst, gateway.DefaultQueueSize),
		Registry: registry,
		Metrics:  gateway.NewMetrics(promReg),
		Console:  cmd.OutOrStdout(),
		Log:      log.Named("gateway"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sc.Duration)
	defer cancel()

	if simHTTP != "" {
		srv := gateway.NewHTTPServer(simHTTP, gateway.NewRouter(gw, gateway.MetricsHandler(promReg)))
		go srv.ListenAndServe() //nolint:errcheck
		defer srv.Close()
	}
	go gw.ReadConsole(ctx, cmd.InOrStdin()) //nolint:errcheck

	start := time.Now()
	clock := func() uint32 { return uint32(time.Since(start) / time.Millisecond) }

	var wg sync.WaitGroup
	for i := 0; i < sc.Leaves; i++ {
		id := uint32(firstLeafID + i)
		unit, err := newSimLeaf(medium, rc, id, sc.ReadoutInterval, clock, int8(-60-5*i))
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLeaf(ctx, unit, log.With(zap.Uint32("leaf", id)))
		}()
	}

	log.Info("simulation started", zap.Int("leaves", sc.Leaves), zap.Duration("duration", sc.Duration))
	runErr := gw.Run(ctx)
	cancel()
	wg.Wait()

	printSummary(cmd, registry, medium.Stats(), engine.Stats())
	return runErr
}

func newSimLeaf(m *sim.Medium, rc radio.Config, id, readout uint32, clock func() uint32, rssi int8) (*tag.Tag, error) {
	store, err := settings.NewStore(settings.NewMemFlash(4096, 4096), 0)
	if err != nil {
		return nil, err
	}
	st := settings.Settings{ReadoutIntervalSec: readout, Radio: rc}
	leaf := core.New(m.NewRadio(fmt.Sprintf("leaf-%d", id), rssi), core.Config{Role: core.RoleLeaf, ID: id, Radio: rc})
	return tag.New(tag.Config{
		Link:     leaf,
		Monitor:  sensor.NewBatteryMonitor(&simSampler{mv: 3300}, func() uint32 { return clock() / 1000 }),
		Store:    store,
		Settings: st,
		Clock:    clock,
	}), nil
}

// runLeaf drives a tag, sleeping in short slices so a forced readout or the
// end of the run is noticed promptly
func runLeaf(ctx context.Context, unit *tag.Tag, log *zap.Logger) {
	for ctx.Err() == nil {
		d, err := unit.Step()
		if err != nil {
			log.Error("leaf stopped", zap.Error(err))
			return
		}
		if d > 10*time.Millisecond {
			d = 10 * time.Millisecond
		}
		if d <= 0 {
			d = 100 * time.Microsecond
		}
		select {
		case <-ctx.Done():
		case <-unit.Wake():
		case <-time.After(d):
		}
	}
}

func printSummary(cmd *cobra.Command, registry *gateway.Registry, ms sim.Stats, ls core.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nchannel: %d frames, %d delivered, %d collisions, %d lost\n",
		ms.Frames, ms.Delivered, ms.Collisions, ms.Lost)
	fmt.Fprintf(out, "gateway: %d received, %d acks sent, %d sent, %d acknowledged, %d dropped\n",
		ls.Received, ls.AcksSent, ls.Sent, ls.Acknowledged, ls.Dropped)

	nodes, err := registry.List()
	if err != nil {
		fmt.Fprintln(out, "registry:", err)
		return
	}
	for _, n := range nodes {
		battery := "-"
		if n.Battery != nil {
			battery = fmt.Sprintf("%d mV", n.Battery.MilliVolts)
		}
		fmt.Fprintf(out, "node %d: %d frames, last %d dBm, battery %s\n", n.ID, n.Frames, n.RSSI, battery)
	}
}
