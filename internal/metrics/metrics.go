// Package metrics registers the engine's prometheus collectors, following
// the promauto package-level-var convention used throughout the corpus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bioengine"

var (
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently held by a worker thread",
		},
	)

	AcceptedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_connections_total",
			Help:      "Connections accepted by the acceptor loop",
		},
	)

	RejectedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Connections rejected because the connection latch was full",
		},
	)

	WorkerPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_in_use",
			Help:      "Worker goroutines currently processing a connection",
		},
	)

	RequestsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_handled_total",
			Help:      "Requests processed, labeled by outcome",
		},
		[]string{"outcome"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent parsing and processing a single request",
			Buckets:   prometheus.DefBuckets,
		},
	)

	AsyncTimeoutSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_timeout_sweeps_total",
			Help:      "Idle/stalled connections closed by the async timeout sweeper",
		},
	)

	KeepAliveExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalive_exhausted_total",
			Help:      "Connections closed after reaching the configured max keep-alive request count",
		},
	)
)
