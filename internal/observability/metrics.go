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
			Namespace: "uspctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uspctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	scriptLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uspctl",
			Subsystem: "script",
			Name:      "lines_total",
			Help:      "Script lines by processing outcome.",
		},
		[]string{"outcome"},
	)
	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uspctl",
			Subsystem: "mtp",
			Name:      "enqueued_total",
			Help:      "Messages handed to the transport hub.",
		},
		[]string{"msg_type", "mtp"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uspctl",
			Subsystem: "mtp",
			Name:      "sends_total",
			Help:      "Transport send attempts by result.",
		},
		[]string{"mtp", "success"},
	)
	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uspctl",
			Subsystem: "mtp",
			Name:      "send_duration_seconds",
			Help:      "Transport send duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mtp", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, scriptLines, enqueued, sends, sendDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordLine counts one script line under outcome (dispatched, skipped,
// rejected, enqueue_failed).
func RecordLine(outcome string) {
	RegisterMetrics()
	scriptLines.WithLabelValues(outcome).Inc()
}

func RecordEnqueue(msgType, mtp string) {
	RegisterMetrics()
	enqueued.WithLabelValues(msgType, mtp).Inc()
}

func RecordSend(mtp string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	sends.WithLabelValues(mtp, successLabel).Inc()
	sendDuration.WithLabelValues(mtp, successLabel).Observe(duration.Seconds())
}
