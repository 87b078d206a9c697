// Package metrics holds the Prometheus instruments of the versioning engine.
// All collectors register with the default registry, which /metrics serves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "palimpsest"

var (
	// Commits counts versions appended to a graph, by the operation that
	// produced them (update, apply, commit).
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Versions committed, by operation",
	}, []string{"operation"})

	// Checkouts counts replays, split by whether singleflight shared the work.
	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Version checkouts by result",
	}, []string{"result"})

	// ReplayLength records how many patches a replay applied.
	ReplayLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "replay_chain_length",
		Help:      "Patches applied per replay",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// PatchRejections counts patches that failed to apply to the current state.
	PatchRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "patch_rejections_total",
		Help:      "Patches rejected, by reason (stale, malformed)",
	}, []string{"reason"})

	// OperationDuration tracks facade operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Document operation duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation", "status"})

	// SideEffectFailures counts mirror and index writes that failed after a
	// durable commit.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Mirror and search index failures",
	}, []string{"target"})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status",
	}, []string{"method", "status"})
)

// ObserveOperation records one facade call. A nil err is "ok".
func ObserveOperation(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// MirrorFailed and IndexFailed count side-effect failures.
func MirrorFailed() { SideEffectFailures.WithLabelValues("mirror").Inc() }

func IndexFailed(error) { SideEffectFailures.WithLabelValues("index").Inc() }
