package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnv_backend_requests_total",
			Help: "Total number of BNV backend request attempts.",
		},
		[]string{"endpoint", "outcome"},
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnv_cycles_total",
			Help: "Total number of outfit cycles by final status.",
		},
		[]string{"status"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bnv_cycle_duration_seconds",
			Help:    "Outfit cycle duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CyclesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bnv_cycles_skipped_total",
			Help: "Total number of scheduled cycles skipped because another cycle was running.",
		},
	)

	WearablesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnv_wearables_ingested_total",
			Help: "Total number of catalog wearables processed by result.",
		},
		[]string{"result"},
	)

	OutfitMatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bnv_outfit_matches_total",
			Help: "Total number of attribute-to-wearable matches above threshold.",
		},
	)

	OpsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnv_ops_http_requests_total",
			Help: "Total number of requests served by the ops HTTP server.",
		},
		[]string{"method", "path", "status"},
	)

	OpsRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bnv_ops_http_request_duration_seconds",
			Help:    "Ops HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bnv_cleanup_failures_total",
			Help: "Total number of transient memories that could not be removed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BackendRequestsTotal,
		CyclesTotal,
		CycleDuration,
		CyclesSkippedTotal,
		WearablesIngestedTotal,
		OutfitMatchesTotal,
		CleanupFailuresTotal,
		OpsRequestsTotal,
		OpsRequestDuration,
	)
}
