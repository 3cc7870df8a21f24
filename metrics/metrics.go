// Package metrics holds the process-wide Prometheus collectors, exposed via
// the HTTP API's /metrics endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "watchgate",
			Subsystem: "tcp",
			Name:      "active_connections",
			Help:      "Currently open device connections.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchgate",
			Subsystem: "tcp",
			Name:      "frames_total",
			Help:      "Frames processed, by message type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	pushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchgate",
			Subsystem: "push",
			Name:      "events_total",
			Help:      "Push notification events, by result.",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(activeConnections, framesTotal, pushTotal)
	})
}

// ConnOpened increments the active connection gauge.
func ConnOpened() {
	Register()
	activeConnections.Inc()
}

// ConnClosed decrements the active connection gauge.
func ConnClosed() {
	Register()
	activeConnections.Dec()
}

// Frame outcome labels
const (
	OutcomeReply   = "reply"
	OutcomeError   = "error"
	OutcomeSilence = "silence"
	OutcomeUnknown = "unknown_type"
)

// FrameProcessed counts one processed frame.
func FrameProcessed(msgType string, outcome string) {
	Register()
	framesTotal.WithLabelValues(msgType, outcome).Inc()
}

// Push result labels
const (
	PushDelivered   = "delivered"
	PushNoSession   = "no_session"
	PushWriteFailed = "write_failed"
	PushBadEvent    = "bad_event"
)

// PushEvent counts one processed push event.
func PushEvent(result string) {
	Register()
	pushTotal.WithLabelValues(result).Inc()
}
