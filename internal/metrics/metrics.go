package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairpad",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pairpad",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// ActiveConnections tracks websocket connections currently registered.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pairpad",
		Name:      "active_connections",
		Help:      "Currently registered websocket connections",
	})

	// FramesReceived counts inbound protocol frames by type.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairpad",
		Name:      "frames_received_total",
		Help:      "Inbound websocket frames by type",
	}, []string{"type"})

	// FramesBroadcast counts per-recipient broadcast deliveries.
	FramesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pairpad",
		Name:      "frames_broadcast_total",
		Help:      "Frames delivered by the broadcast engine",
	})

	// StaleEvictions counts connections closed by the liveness monitor.
	StaleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pairpad",
		Name:      "stale_evictions_total",
		Help:      "Connections evicted after a ping timeout",
	})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and latency. Websocket upgrades bypass the
// recorder because the hijacked connection never writes a conventional status.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}
