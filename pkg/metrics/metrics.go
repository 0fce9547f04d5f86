// Copyright 2025 Archethic Network
//
// Metrics wires the teacher's declared-but-unused prometheus/client_golang
// dependency into a real collector for the mining workflow: active
// workflow gauge, commit/abort counters by reason, and replication
// acknowledgment latency.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every Prometheus collector the mining workflow touches.
type Metrics struct {
	WorkflowsActive        prometheus.Gauge
	CommitsTotal            prometheus.Counter
	AbortsTotal              *prometheus.CounterVec
	ReplicationAckLatency   prometheus.Histogram
	ContextCollectionLatency prometheus.Histogram
}

// New registers every collector against the default Prometheus registry
// (so it may be called only once per process) and returns the
// grouped handles mining.Workflow calls into.
func New() *Metrics {
	m := &Metrics{
		WorkflowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_workflows_active",
			Help: "Number of in-flight mining workflows currently registered.",
		}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_commits_total",
			Help: "Total number of transactions that reached atomic commitment.",
		}),
		AbortsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_aborts_total",
			Help: "Total number of mining workflows that aborted, labeled by reason.",
		}, []string{"reason"}),
		ReplicationAckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replication_ack_latency_seconds",
			Help:    "Time from replication broadcast to quorum acknowledgment.",
			Buckets: prometheus.DefBuckets,
		}),
		ContextCollectionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mining_context_collection_latency_seconds",
			Help:    "Time the coordinator spends collecting cross-validator mining contexts.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.WorkflowsActive,
		m.CommitsTotal,
		m.AbortsTotal,
		m.ReplicationAckLatency,
		m.ContextCollectionLatency,
	)

	return m
}

// Handler exposes the registered collectors at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
