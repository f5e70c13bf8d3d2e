// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts validation attempts by slot and outcome.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canteen",
		Name:      "scans_total",
		Help:      "QR scan validation attempts by slot and result.",
	}, []string{"slot", "result"})

	// MessDaysConsumed counts mess-days charged against member quotas.
	MessDaysConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canteen",
		Name:      "mess_days_consumed_total",
		Help:      "Mess-days charged against monthly quotas.",
	})

	// Resets counts monthly resets by trigger (auto, manual).
	Resets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canteen",
		Name:      "monthly_resets_total",
		Help:      "Monthly counter resets by trigger.",
	}, []string{"trigger"})

	// TokensIssued counts QR tokens created by kind (slot, member).
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canteen",
		Name:      "tokens_issued_total",
		Help:      "QR tokens created by kind.",
	}, []string{"kind"})

	// HTTPDuration observes request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "canteen",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
