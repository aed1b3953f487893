package gateway

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a Prometheus registry with the runtime collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics are the gateway's link counters
type Metrics struct {
	FramesReceived  *prometheus.CounterVec // labels: type=data|command
	NodeRSSI        *prometheus.GaugeVec   // labels: node
	CommandsQueued  prometheus.Counter
	CommandsDropped *prometheus.CounterVec // labels: reason
	MailboxRetries  prometheus.Counter
	Transitions     prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// NewMetrics registers the gateway metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radiolink_frames_received_total",
			Help: "Frames delivered by the link engine.",
		}, []string{"type"}),
		NodeRSSI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiolink_node_rssi_dbm",
			Help: "Signal strength of the last frame from each node.",
		}, []string{"node"}),
		CommandsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiolink_commands_queued_total",
			Help: "Register commands accepted into the queue.",
		}),
		CommandsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radiolink_commands_dropped_total",
			Help: "Register commands discarded.",
		}, []string{"reason"}),
		MailboxRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiolink_mailbox_retries_total",
			Help: "Command appends refused because a message was pending.",
		}),
		Transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiolink_engine_transitions_total",
			Help: "Link engine state transitions.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiolink_command_queue_depth",
			Help: "Register commands waiting for the mailbox.",
		}),
	}
	reg.MustRegister(m.FramesReceived, m.NodeRSSI, m.CommandsQueued, m.CommandsDropped,
		m.MailboxRetries, m.Transitions, m.QueueDepth)
	return m
}

func (m *Metrics) frame(kind string, node uint32, rssi int8) {
	m.FramesReceived.WithLabelValues(kind).Inc()
	m.NodeRSSI.WithLabelValues(strconv.FormatUint(uint64(node), 10)).Set(float64(rssi))
}
