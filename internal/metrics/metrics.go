package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MovementsTotal counts ledger movements by kind and outcome
	// (ok, rejected, error).
	MovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeledger_movements_total",
		Help: "Ledger movements by kind and outcome.",
	}, []string{"kind", "outcome"})

	// HTTPRequestDuration observes request latency per route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeledger_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
