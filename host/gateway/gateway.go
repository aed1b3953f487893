// Package gateway is the coordinator application. It prints what the leaves
// report, keeps a registry of them, and turns console or HTTP requests into
// register commands paced into the engine's single-slot mailbox.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"radiolink/core"
	"radiolink/protocol"
	"radiolink/sensor"
)

// DefaultPollInterval paces the engine loop while the link is quiet
const DefaultPollInterval = time.Millisecond

// Link is the part of the engine the command queue needs
type Link interface {
	AppendCommand(dest uint32, dir protocol.Direction, code uint8, params []byte) error
	HasOutgoing() bool
}

// Config wires a gateway
type Config struct {
	Engine   *core.Engine
	Queue    *Queue
	Registry *Registry // optional
	Metrics  *Metrics  // optional
	Console  io.Writer
	Log      *zap.Logger

	// NodeTTL drops registry entries not heard from for this long; zero keeps them
	NodeTTL      time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

// Gateway runs the coordinator loop
type Gateway struct {
	engine   *core.Engine
	queue    *Queue
	registry *Registry
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
	ttl      time.Duration
	poll     time.Duration

	consoleMu sync.Mutex
	console   io.Writer

	lastPrune time.Time
}

// New registers the gateway's callbacks on the engine
func New(cfg Config) *Gateway {
	g := &Gateway{
		engine:   cfg.Engine,
		queue:    cfg.Queue,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
		now:      cfg.Now,
		ttl:      cfg.NodeTTL,
		poll:     cfg.PollInterval,
		console:  cfg.Console,
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.poll <= 0 {
		g.poll = DefaultPollInterval
	}
	if g.queue == nil {
		g.queue = NewQueue(1, 1, DefaultQueueSize)
	}
	if g.console == nil {
		g.console = io.Discard
	}

	g.engine.RegisterDataReceived(g.dataReceived)
	g.engine.RegisterCommandReceived(g.commandReceived)
	g.engine.Trace().SetWriter(g.traceLine)
	return g
}

// Queue returns the command queue
func (g *Gateway) Queue() *Queue {
	return g.queue
}

// Registry returns the node registry, nil when not persisted
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Engine returns the coordinator engine
func (g *Gateway) Engine() *core.Engine {
	return g.engine
}

func (g *Gateway) println(line string) {
	g.consoleMu.Lock()
	defer g.consoleMu.Unlock()
	fmt.Fprintln(g.console, line)
}

func (g *Gateway) traceLine(line string) {
	if g.metrics != nil {
		g.metrics.Transitions.Inc()
	}
	g.log.Debug(line)
}

// Submit queues a register command
func (g *Gateway) Submit(r Request) error {
	if err := g.queue.Push(r); err != nil {
		if g.metrics != nil {
			g.metrics.CommandsDropped.WithLabelValues("queue_full").Inc()
		}
		return err
	}
	if g.metrics != nil {
		g.metrics.CommandsQueued.Inc()
		g.metrics.QueueDepth.Set(float64(g.queue.Len()))
	}
	g.log.Info("command queued", zap.Stringer("request", r))
	return nil
}

// Step runs one loop pass: the engine, then the command queue, then
// registry housekeeping
func (g *Gateway) Step() error {
	if err := g.engine.Process(); err != nil {
		return err
	}

	now := g.now()
	r, outcome, err := g.queue.Drain(now, g.engine)
	switch outcome {
	case Appended:
		g.log.Debug("command sent to mailbox", zap.Stringer("request", r))
	case Retry:
		if g.metrics != nil {
			g.metrics.MailboxRetries.Inc()
		}
	case Dropped:
		g.log.Warn("command rejected", zap.Stringer("request", r), zap.Error(err))
		if g.metrics != nil {
			g.metrics.CommandsDropped.WithLabelValues("rejected").Inc()
		}
	}
	if outcome != Idle && g.metrics != nil {
		g.metrics.QueueDepth.Set(float64(g.queue.Len()))
	}

	if g.registry != nil && g.ttl > 0 && now.Sub(g.lastPrune) >= g.ttl/4 {
		g.lastPrune = now
		if n, err := g.registry.Prune(now.Add(-g.ttl)); err != nil {
			g.log.Warn("registry prune failed", zap.Error(err))
		} else if n > 0 {
			g.log.Info("nodes expired", zap.Int("count", n))
		}
	}
	return nil
}

// Run steps until ctx is cancelled, then closes the engine
func (g *Gateway) Run(ctx context.Context) error {
	defer g.engine.Close()

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		if err := g.Step(); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReadConsole turns GETREG and SETREG lines from r into queued commands
// until r is exhausted or ctx is cancelled
func (g *Gateway) ReadConsole(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		req, err := ParseConsoleLine(sc.Text())
		if errors.Is(err, ErrNotCommand) {
			continue
		}
		if err == nil {
			err = g.Submit(req)
		}
		if err != nil {
			g.println("ERROR: " + err.Error())
		}
	}
	return sc.Err()
}

func (g *Gateway) dataReceived(msg protocol.Data, rssi int8) {
	g.println(FormatData(msg.Source, rssi, msg.Payload))
	if g.metrics != nil {
		g.metrics.frame("data", msg.Source, rssi)
	}
	if g.registry == nil {
		return
	}

	reading, decodeErr := sensor.DecodeBatteryReading(msg.Payload)
	_, err := g.registry.Update(msg.Source, g.now(), func(n *Node) {
		n.RSSI = rssi
		n.Frames++
		if decodeErr == nil {
			n.Battery = &Battery{
				Timestamp:    reading.Timestamp,
				MilliVolts:   reading.MilliVolts,
				TemperatureC: reading.TemperatureC,
			}
		}
	})
	if err != nil {
		g.log.Warn("registry update failed", zap.Uint32("node", msg.Source), zap.Error(err))
	}
}

func (g *Gateway) commandReceived(msg protocol.Command, rssi int8) {
	if msg.Direction != protocol.DirResponse {
		return
	}
	resp, err := DecodeResponse(msg)
	if err != nil {
		g.log.Debug("unexpected command frame",
			zap.Uint32("node", msg.Source), zap.Uint8("code", msg.Code), zap.Error(err))
		return
	}
	g.println(FormatResponse(msg.Source, rssi, resp))
	if g.metrics != nil {
		g.metrics.frame("command", msg.Source, rssi)
	}
	if g.registry == nil {
		return
	}

	now := g.now()
	_, err = g.registry.Update(msg.Source, now, func(n *Node) {
		n.RSSI = rssi
		n.Frames++
		if n.Registers == nil {
			n.Registers = map[uint16]Register{}
		}
		reg := n.Registers[resp.Reg]
		if resp.Code == protocol.CmdGetRegister {
			reg.Value = resp.Value
		}
		reg.OK = resp.OK
		reg.UpdatedAt = now
		n.Registers[resp.Reg] = reg
	})
	if err != nil {
		g.log.Warn("registry update failed", zap.Uint32("node", msg.Source), zap.Error(err))
	}
}
