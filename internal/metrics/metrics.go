package metrics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway lifecycle metrics
var (
	EnsureAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moltproxy_gateway_ensure_total",
			Help: "Ensure-ready attempts by outcome",
		},
		[]string{"outcome"},
	)

	EnsureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moltproxy_gateway_ensure_duration_seconds",
			Help:    "Time to resolve a ready gateway process",
			Buckets: []float64{0.05, 0.25, 1.0, 5.0, 15.0, 60.0, 180.0},
		},
	)

	Restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moltproxy_gateway_restarts_total",
			Help: "Gateway processes killed and replaced",
		},
	)
)

// Proxy metrics
var (
	ProxiedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moltproxy_proxied_requests_total",
			Help: "Requests forwarded to the gateway by result",
		},
		[]string{"result"},
	)

	WebSocketSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moltproxy_websocket_sessions_active",
			Help: "Open WebSocket bridges to the gateway",
		},
	)
)

// Backup metrics
var (
	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moltproxy_backup_duration_seconds",
			Help:    "Time to archive and upload a backup",
			Buckets: []float64{1, 5, 15, 60, 300},
		},
	)

	BackupBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moltproxy_backup_bytes_total",
			Help: "Total bytes uploaded to object storage",
		},
	)

	BackupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moltproxy_backup_failures_total",
			Help: "Backup runs that did not complete",
		},
	)
)

// HTTP surface metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moltproxy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		EnsureAttempts,
		EnsureDuration,
		Restarts,
		ProxiedRequests,
		WebSocketSessionsActive,
		BackupDuration,
		BackupBytes,
		BackupFailures,
		HTTPRequestsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()

			return err
		}
	}
}
