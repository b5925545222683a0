// Package metrics exposes Prometheus metrics for the authorization flow and
// its HTTP transport.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flow outcomes recorded by FlowCompleted.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors of one flow controller and its transport.
type Metrics struct {
	FlowsStarted      *prometheus.CounterVec
	FlowsCompleted    *prometheus.CounterVec
	TokenRefreshes    *prometheus.CounterVec
	LoadRetries       prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
	PendingAuthorizer prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FlowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_authorization_started_total",
			Help: "Total number of authorization code requests started",
		}, []string{"client_id"}),
		FlowsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_authorization_completed_total",
			Help: "Total number of authorization attempts resolved, by outcome and error kind",
		}, []string{"client_id", "outcome", "kind"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_token_refresh_total",
			Help: "Total number of access token refreshes, by outcome",
		}, []string{"client_id", "outcome"}),
		LoadRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "authflow_authorization_load_retries_total",
			Help: "Total number of authorization page reloads after a load failure",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authflow_http_request_duration_seconds",
			Help:    "Duration of requests to the provider endpoints",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "status"}),
		PendingAuthorizer: factory.NewGauge(prometheus.GaugeOpts{
			Name: "authflow_authorization_pending",
			Help: "1 while an authorization attempt waits for external approval",
		}),
	}
}

// FlowStarted records a new authorization attempt.
func (m *Metrics) FlowStarted(clientID string) {
	if m == nil {
		return
	}
	m.FlowsStarted.WithLabelValues(clientID).Inc()
	m.PendingAuthorizer.Set(1)
}

// FlowCompleted records the resolution of an authorization attempt.
// kind is empty on success.
func (m *Metrics) FlowCompleted(clientID, outcome, kind string) {
	if m == nil {
		return
	}
	m.FlowsCompleted.WithLabelValues(clientID, outcome, kind).Inc()
	m.PendingAuthorizer.Set(0)
}

// TokenRefreshed records a refresh request and its outcome.
func (m *Metrics) TokenRefreshed(clientID, outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(clientID, outcome).Inc()
}

// LoadRetried records a reload of the authorization page.
func (m *Metrics) LoadRetried() {
	if m == nil {
		return
	}
	m.LoadRetries.Inc()
}

// ObserveRequest records the duration of a provider request.
// Call with time.Now() at the start of the request; status is the HTTP
// status code as text, or "error" when no response was received.
func (m *Metrics) ObserveRequest(method, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}
