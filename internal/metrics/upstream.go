package metrics

import "github.com/prometheus/client_golang/prometheus"

// Upstream Prometheus metrics for outbound calls to the completion and search APIs.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splask",
			Name:      "upstream_requests_total",
			Help:      "Total number of outbound upstream calls",
		},
		[]string{"target", "op", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splask",
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound upstream call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"target", "op"},
	)

	PipelineStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splask",
			Name:      "pipeline_stages_total",
			Help:      "Pipeline stage transitions by outcome",
		},
		[]string{"stage", "outcome"}, // outcome: "ok" / "failed"
	)
)

var upstreamMetricsRegistered bool

// RegisterUpstreamMetrics registers Prometheus upstream metrics. Must be called once from main.
func RegisterUpstreamMetrics() {
	if upstreamMetricsRegistered {
		return
	}
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(PipelineStagesTotal)
	upstreamMetricsRegistered = true
}
