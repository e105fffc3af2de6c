package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the node's Prometheus collectors on a private registry
type Metrics struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	queries         *prometheus.CounterVec
	fileRequests    *prometheus.CounterVec
	inboundRequests *prometheus.CounterVec
	staleEvents     *prometheus.CounterVec
	pending         *prometheus.GaugeVec
	connectedPeers  prometheus.Gauge
}

// NewMetrics creates and registers the node collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Name:      "commands_total",
			Help:      "Commands handled by the event loop.",
		}, []string{"command"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Name:      "dht_queries_total",
			Help:      "DHT queries by kind and terminal outcome.",
		}, []string{"kind", "outcome"}),
		fileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Name:      "file_requests_total",
			Help:      "Outbound file requests by outcome.",
		}, []string{"outcome"}),
		inboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Name:      "inbound_requests_total",
			Help:      "Inbound file requests by disposition.",
		}, []string{"disposition"}),
		staleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Name:      "stale_events_total",
			Help:      "Terminal events discarded because nothing was waiting for them.",
		}, []string{"source"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dfs",
			Name:      "pending_entries",
			Help:      "Outstanding entries per pending table.",
		}, []string{"table"}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dfs",
			Name:      "connected_peers",
			Help:      "Peers with at least one open connection.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands,
		m.queries,
		m.fileRequests,
		m.inboundRequests,
		m.staleEvents,
		m.pending,
		m.connectedPeers,
	)
	return m
}

// Gatherer exposes the registry for scraping
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
