// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry collects all gateway metrics behind a single Prometheus registry
// so tests can create isolated instances.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRejectionsTotal *prometheus.CounterVec

	ConnectionsActive   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	OutboundDropsTotal  prometheus.Counter
	MessagesSentTotal   *prometheus.CounterVec
	SubscriptionsActive prometheus.Gauge
	AuthFailuresTotal   *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	BusPublishTotal     *prometheus.CounterVec
}

// New creates a Registry with all gateway metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled, by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPRejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rejections_total",
			Help: "Requests rejected by the security chain, by filter.",
		}, []string{"filter"}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Currently open WebSocket connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "WebSocket connections accepted since start.",
		}),
		OutboundDropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "websocket_outbound_drops_total",
			Help: "Outbound frames dropped because a send queue was full.",
		}),
		MessagesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Frames delivered to clients, by topic.",
		}, []string{"topic"}),
		SubscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_subscriptions_active",
			Help: "Active subscription entries in the registry.",
		}),
		AuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Token verification failures, by reason.",
		}, []string{"reason"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Sessions currently tracked by the session store.",
		}),
		BusPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Events published on the internal bus, by topic.",
		}, []string{"topic"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRequest records a completed HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
