package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zmtpwire",
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Completed or failed greeting exchanges.",
		},
		[]string{"local_role", "remote_role", "result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zmtpwire",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently in the READY state.",
		},
	)
	sessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zmtpwire",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Fatal session errors by kind.",
		},
		[]string{"kind"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zmtpwire",
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "Messages moved through sessions.",
		},
		[]string{"direction", "remote_role"},
	)
	messageParts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zmtpwire",
			Subsystem: "wire",
			Name:      "message_parts",
			Help:      "Parts per message, excluding prefix frames.",
			Buckets:   []float64{1, 2, 3, 4, 8, 16, 64},
		},
		[]string{"direction"},
	)
	payloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zmtpwire",
			Subsystem: "wire",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes moved through sessions.",
		},
		[]string{"direction"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zmtpwire",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zmtpwire",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			handshakes,
			sessionsActive,
			sessionErrors,
			messages,
			messageParts,
			payloadBytes,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordHandshake(localRole, remoteRole string, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "failed"
	}
	handshakes.WithLabelValues(localRole, remoteRole, result).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

func RecordSessionError(kind string) {
	RegisterMetrics()
	sessionErrors.WithLabelValues(kind).Inc()
}

// RecordMessage counts one message; direction is "in" or "out".
func RecordMessage(direction, remoteRole string, parts, size int) {
	RegisterMetrics()
	messages.WithLabelValues(direction, remoteRole).Inc()
	messageParts.WithLabelValues(direction).Observe(float64(parts))
	payloadBytes.WithLabelValues(direction).Add(float64(size))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
