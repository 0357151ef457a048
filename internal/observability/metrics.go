// Package observability provides Prometheus metrics and HTTP middleware for the
// Ask Islamically backend.
package observability

import "github.com/prometheus/client_golang/prometheus"

// CompletionBuckets covers language-model latencies from 100ms to 2 minutes.
var CompletionBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ask_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ask_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: CompletionBuckets,
		},
		[]string{"method"},
	)

	// CompletionRequestsTotal counts calls to the language-model backend.
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ask_completion_requests_total",
			Help: "Completion backend requests",
		},
		[]string{"provider", "status"},
	)

	// CompletionLatency records language-model backend latency in seconds.
	CompletionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ask_completion_latency_seconds",
			Help:    "Completion backend latency",
			Buckets: CompletionBuckets,
		},
		[]string{"provider"},
	)

	// ChatCyclesTotal counts request cycles run by chat sessions.
	ChatCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ask_chat_cycles_total",
			Help: "Chat request cycles by outcome",
		},
		[]string{"outcome"},
	)

	// SessionsActive tracks live chat sessions.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ask_chat_sessions_active",
			Help: "Active chat sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		CompletionRequestsTotal,
		CompletionLatency,
		ChatCyclesTotal,
		SessionsActive,
	)
}
