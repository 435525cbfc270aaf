package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lvstream",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lvstream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	liveviewPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lvstream",
			Subsystem: "liveview",
			Name:      "packets_total",
			Help:      "Decoded liveview packets by kind.",
		},
		[]string{"kind"},
	)
	liveviewPayloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lvstream",
			Subsystem: "liveview",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes read from liveview frames, padding excluded.",
		},
	)
	liveviewSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lvstream",
			Subsystem: "liveview",
			Name:      "skipped_total",
			Help:      "Frames consumed without emitting a packet.",
		},
		[]string{"reason"},
	)
	liveviewFPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lvstream",
			Subsystem: "liveview",
			Name:      "fps",
			Help:      "Image packets per second over the last report interval.",
		},
	)
	liveviewState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lvstream",
			Subsystem: "liveview",
			Name:      "connection_state",
			Help:      "Connection state: 0 closed, 1 connecting, 2 connected.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			liveviewPackets,
			liveviewPayloadBytes,
			liveviewSkipped,
			liveviewFPS,
			liveviewState,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacket(kind string, payloadBytes int) {
	RegisterMetrics()
	liveviewPackets.WithLabelValues(kind).Inc()
	liveviewPayloadBytes.Add(float64(payloadBytes))
}

func RecordSkip(reason string) {
	RegisterMetrics()
	liveviewSkipped.WithLabelValues(reason).Inc()
}

func SetFPS(fps float64) {
	RegisterMetrics()
	liveviewFPS.Set(fps)
}

func SetConnectionState(state int) {
	RegisterMetrics()
	liveviewState.Set(float64(state))
}
