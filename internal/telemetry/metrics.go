// Package telemetry owns the service's Prometheus collectors and OpenTelemetry
// tracer provider.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roomvault"

// Metrics groups the collectors updated by the application layer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	messagesStored  prometheus.Counter
	sendFailures    *prometheus.CounterVec
	decryptFailures prometheus.Counter
	eventsDelivered *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	subscribers     prometheus.Gauge
	activeRooms     prometheus.Gauge
	keyDerivations  prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messagesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages encrypted and appended to the store.",
		}),
		sendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Sends rejected or aborted before broadcast, by reason.",
		}, []string{"reason"}),
		decryptFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_decrypt_failures_total",
			Help:      "History records replaced by a placeholder because decryption failed.",
		}),
		eventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Room events handed to subscriber connections, by event type.",
		}, []string{"type"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Room events dropped because a subscriber's buffer was full.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live room subscriptions across all rooms.",
		}),
		activeRooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with at least one live subscriber.",
		}),
		keyDerivations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "key_derivation_seconds",
			Help:      "Time spent deriving room keys.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

// MessageStored counts a successful append.
func (m *Metrics) MessageStored() {
	if m == nil {
		return
	}
	m.messagesStored.Inc()
}

// SendFailed counts a send that was not broadcast.
func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

// DecryptFailed counts a history record that could not be decrypted.
func (m *Metrics) DecryptFailed() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

// EventDelivered counts an event handed to one subscriber.
func (m *Metrics) EventDelivered(eventType string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(eventType).Inc()
}

// EventDropped counts an event a subscriber could not accept.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// SubscriptionsChanged adjusts the subscriber and active room gauges.
func (m *Metrics) SubscriptionsChanged(subscriberDelta, roomDelta float64) {
	if m == nil {
		return
	}
	m.subscribers.Add(subscriberDelta)
	m.activeRooms.Add(roomDelta)
}

// ObserveKeyDerivation records how long a derivation took.
func (m *Metrics) ObserveKeyDerivation(seconds float64) {
	if m == nil {
		return
	}
	m.keyDerivations.Observe(seconds)
}
