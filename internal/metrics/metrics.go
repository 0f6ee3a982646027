// Package metrics holds the prometheus collectors shared by the poller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts management API calls by endpoint (login|show) and
	// outcome (ok|rejected|transport|malformed|failed).
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msamon_api_requests_total",
		Help: "Management API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// APIRequestDuration observes management API round-trip latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msamon_api_request_duration_seconds",
		Help:    "Management API request latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	// SessionCache counts session cache lookups by result (hit|miss|expired).
	SessionCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msamon_session_cache_total",
		Help: "Session cache lookups by result.",
	}, []string{"result"})

	// UnhealthyComponents is the number of components reporting a
	// non-OK health code in the last poll.
	UnhealthyComponents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "msamon_unhealthy_components",
		Help: "Components reporting non-OK health in the last poll.",
	}, []string{"host", "resource"})

	// PollErrors counts failed poll cycles.
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msamon_poll_errors_total",
		Help: "Failed poll cycles by resource.",
	}, []string{"resource"})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
