package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusInvoked = "invoked"
	StatusFailed  = "failed"

	StatusScored  = "scored"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

var (
	// DispatchItemsTotal counts fire-and-forget processor invocations by outcome.
	DispatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cv_dispatch_items_total",
			Help: "Total number of CV processing invocations issued by the dispatcher.",
		},
		[]string{"status"},
	)

	DispatchBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cv_dispatch_batches_total",
			Help: "Total number of dispatch batches submitted.",
		},
	)

	// AnalysisTotal counts processor outcomes: scored, skipped (already analysed) or error.
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cv_analysis_total",
			Help: "Total number of CV analyses by outcome.",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests by function and response code.",
		},
		[]string{"function", "code"},
	)
)
