package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthDecisions counts guard outcomes: allowed, unauthorized, forbidden,
	// revoked, store_unavailable.
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_decisions_total",
		Help: "Authorization guard decisions by outcome.",
	}, []string{"outcome"})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections",
		Help: "Currently open WebSocket connections.",
	})

	AccessCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_cache_requests_total",
		Help: "Access profile cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
