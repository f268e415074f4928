// Package metrics provides Prometheus metrics for the guest token relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guest_relay"

// Upstream step labels.
const (
	StepLogin      = "login"
	StepCSRF       = "csrf_token"
	StepGuestToken = "guest_token"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// UpstreamRequestsTotal counts calls to the analytics platform by step.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream Superset API calls",
		},
		[]string{"step", "outcome"},
	)

	// UpstreamRequestDuration measures upstream round trips.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of upstream Superset API calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// GuestTokensTotal counts relay invocations by outcome.
	GuestTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_tokens_total",
			Help:      "Total number of guest token requests handled",
		},
		[]string{"outcome"},
	)

	// RateLimitedTotal counts rejected inbound requests.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of guest token requests rejected by the rate limiter",
		},
	)
)

func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
