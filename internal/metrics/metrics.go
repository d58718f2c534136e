package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simwire"

// Frame directions.
const (
	DirIn  = "in"
	DirOut = "out"
)

// Error kinds recorded by RecordError.
const (
	KindFraming   = "framing"
	KindTransport = "transport"
	KindViolation = "violation"
	KindClosed    = "closed"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "frames_total",
			Help:      "Frames read or written, by message type.",
		},
		[]string{"direction", "type"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "bytes_total",
			Help:      "Frame bytes read or written, size prefix included.",
		},
		[]string{"direction"},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Session errors by kind.",
		},
		[]string{"kind"},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Client sessions accepted.",
		},
	)
	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a client session is open.",
		},
	)
	acceptTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_timeouts_total",
			Help:      "Accept polls that expired without a client.",
		},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from reading a command to finishing its reply.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// RegisterMetrics registers the collectors with the default registry. Safe
// to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesTotal, bytesTotal, errorsTotal,
			sessionsTotal, sessionActive, acceptTimeouts, commandDuration,
		)
	})
}

// RecordFrame counts one frame of n bytes.
func RecordFrame(direction, msgType string, n int) {
	RegisterMetrics()
	framesTotal.WithLabelValues(direction, msgType).Inc()
	bytesTotal.WithLabelValues(direction).Add(float64(n))
}

func RecordError(kind string) {
	RegisterMetrics()
	errorsTotal.WithLabelValues(kind).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsTotal.Inc()
	sessionActive.Set(1)
}

func SessionClosed() {
	RegisterMetrics()
	sessionActive.Set(0)
}

func RecordAcceptTimeout() {
	RegisterMetrics()
	acceptTimeouts.Inc()
}

func ObserveCommand(msgType string, d time.Duration) {
	RegisterMetrics()
	commandDuration.WithLabelValues(msgType).Observe(d.Seconds())
}
