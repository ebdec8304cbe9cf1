// Package observability holds the proxy's Prometheus metrics.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamBuckets covers completion latencies from 50ms up to the longest
// upstream timeout we would configure.
var UpstreamBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15}

var (
	// RequestsTotal counts chat requests by host adapter and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toxicity_proxy_requests_total",
			Help: "Chat requests",
		},
		[]string{"adapter", "status"},
	)

	// UpstreamRequestsTotal counts upstream completion calls by outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toxicity_proxy_upstream_requests_total",
			Help: "Upstream completion calls",
		},
		[]string{"outcome"},
	)

	UpstreamLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toxicity_proxy_upstream_latency_seconds",
			Help:    "Upstream completion latency",
			Buckets: UpstreamBuckets,
		},
	)

	// FallbacksTotal counts scripted replies served, by toxicity level.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toxicity_proxy_fallbacks_total",
			Help: "Fallback replies",
		},
		[]string{"level"},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toxicity_proxy_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		UpstreamRequestsTotal,
		UpstreamLatency,
		FallbacksTotal,
		RateLimitRejectedTotal,
	)
}

// StatusClass renders 200 as "2xx".
func StatusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
