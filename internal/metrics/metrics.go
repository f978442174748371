// Package metrics provides Prometheus instrumentation for the exchange.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts accepted orders by type, side and resulting status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_total",
		Help: "Total number of accepted orders",
	}, []string{"type", "side", "status"})

	// RejectionsTotal counts rejected submissions by rejection code.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_order_rejections_total",
		Help: "Order submissions rejected, by code",
	}, []string{"code"})

	// SettlementLatency tracks time spent in the atomic settlement step.
	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_settlement_latency_seconds",
		Help:    "Settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// FeesCollected tracks cumulative fees per market. Values are in quote
	// currency; the float is for display only.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_fees_collected_total",
		Help: "Cumulative trading fees collected",
	}, []string{"market_id"})

	// MarketVolume tracks cumulative gross trade amount per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_market_volume_total",
		Help: "Cumulative gross trade amount",
	}, []string{"market_id", "side"})

	// OrdersExpired counts pending orders moved to expired by the sweeper.
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_orders_expired_total",
		Help: "Pending orders expired by the sweeper",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventPublishFailures counts events a publisher failed to deliver.
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_event_publish_failures_total",
		Help: "Events that failed to publish after commit",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes WebSocket upgrades through to the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
