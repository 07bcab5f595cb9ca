// Package metrics exposes Prometheus instrumentation for the gateway (component N).
// Grounded on HyphaGroup-oubliette's internal/metrics/metrics.go promauto pattern,
// adapted to a constructor-injected struct instead of package-level globals so every
// component receives its own explicit *Metrics rather than reaching for a global.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every gauge/counter/histogram the gateway records.
type Metrics struct {
	SessionsActive      prometheus.Gauge
	SessionsTotal       *prometheus.CounterVec
	OCPPCallsTotal       *prometheus.CounterVec
	OCPPCallDuration     *prometheus.HistogramVec
	OCPPCallErrorsTotal  *prometheus.CounterVec
	DashboardClients     prometheus.Gauge
	BusSubscriberPanics  *prometheus.CounterVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New registers and returns the gateway's metric set against the default registry.
func New() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "csms_sessions_active",
			Help: "Number of charging stations currently connected.",
		}),
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_sessions_total",
			Help: "Total sessions accepted, by ocpp version.",
		}, []string{"ocpp_version"}),
		OCPPCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_ocpp_calls_total",
			Help: "Outbound OCPP calls issued, by action and direction.",
		}, []string{"action", "direction"}),
		OCPPCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csms_ocpp_call_duration_seconds",
			Help:    "Outbound OCPP call round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		OCPPCallErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_ocpp_call_errors_total",
			Help: "Outbound OCPP calls that ended in Timeout or Disconnected.",
		}, []string{"action", "kind"}),
		DashboardClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "csms_dashboard_clients",
			Help: "Number of connected dashboard websocket clients.",
		}),
		BusSubscriberPanics: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_bus_subscriber_panics_total",
			Help: "Event bus subscriber panics recovered, by topic.",
		}, []string{"topic"}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_http_requests_total",
			Help: "Total REST/RPC requests served, by route and status.",
		}, []string{"route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csms_http_request_duration_seconds",
			Help:    "REST/RPC request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
