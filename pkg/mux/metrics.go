package mux

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for one client. A nil
// *Metrics is valid and records nothing, so metrics stay optional.
type Metrics struct {
	framesSent       prometheus.Counter
	framesReceived   prometheus.Counter
	framingErrors    *prometheus.CounterVec
	orphanResponses  prometheus.Counter
	requestsInFlight prometheus.Gauge
	notifications    *prometheus.CounterVec
	socketSwaps      prometheus.Counter
}

// NewMetrics registers the client instruments with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "frames_sent_total",
			Help:      "Total frames written to the socket",
		}),
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "frames_received_total",
			Help:      "Total frames decoded from the socket",
		}),
		framingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "framing_errors_total",
			Help:      "Malformed lines skipped by the decoder, by code",
		}, []string{"code"}),
		orphanResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "orphan_responses_total",
			Help:      "Responses with no pending request, dropped",
		}),
		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "termmux",
			Name:      "requests_in_flight",
			Help:      "Requests awaiting a response",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "notifications_total",
			Help:      "Notifications dispatched to listeners, by kind",
		}, []string{"kind"}),
		socketSwaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "termmux",
			Name:      "socket_swaps_total",
			Help:      "Times the underlying socket was replaced",
		}),
	}
}

func (m *Metrics) recordFrameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) recordFrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) recordFramingError(code string) {
	if m != nil {
		m.framingErrors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) recordOrphanResponse() {
	if m != nil {
		m.orphanResponses.Inc()
	}
}

func (m *Metrics) requestStarted() {
	if m != nil {
		m.requestsInFlight.Inc()
	}
}

func (m *Metrics) requestFinished() {
	if m != nil {
		m.requestsInFlight.Dec()
	}
}

func (m *Metrics) recordNotification(kind string) {
	if m != nil {
		m.notifications.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) recordSocketSwap() {
	if m != nil {
		m.socketSwaps.Inc()
	}
}
