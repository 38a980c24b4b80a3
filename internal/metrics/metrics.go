// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes used as the "outcome" label.
const (
	OutcomeSent        = "sent"
	OutcomeSpam        = "spam"
	OutcomeInvalid     = "invalid"
	OutcomeBadRequest  = "bad_request"
	OutcomeConfigError = "config_error"
	OutcomeUpstreamErr = "upstream_error"
	OutcomeRejected    = "upstream_rejected"
	OutcomePanic       = "panic"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_submissions_total",
			Help: "Form submissions by form and outcome.",
		}, []string{"form", "outcome"})

	HoneypotTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_honeypot_trips_total",
			Help: "Submissions dropped because the honeypot field was filled.",
		}, []string{"form"})

	UnrecognizedValuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_unrecognized_values_total",
			Help: "Multiselect values dropped because they are not allowed options.",
		}, []string{"form", "field"})

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_upstream_duration_seconds",
			Help:    "Latency of calls to the mail relay API.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"form", "result"})

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"route"})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		HoneypotTripsTotal,
		UnrecognizedValuesTotal,
		UpstreamDuration,
		RateLimitedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
