package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics exposes ingestion engine metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	messages            *prometheus.CounterVec
	samplesPersisted    prometheus.Counter
	violations          *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	activityTransitions *prometheus.CounterVec
	emergencyEvents     *prometheus.CounterVec
	queueDropped        prometheus.Counter
	brokerConnected     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "messages_total",
			Help:      "Inbound broker messages by processing outcome",
		}, []string{"outcome"}),
		samplesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "samples_persisted_total",
			Help:      "Sensor samples written for their scheduled window",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "threshold_violations_total",
			Help:      "Threshold violations that produced an auto-save log entry",
		}, []string{"reason", "metric"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "notifications_total",
			Help:      "Threshold notification dispatch attempts by result",
		}, []string{"result"}),
		activityTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "device_state_transitions_total",
			Help:      "Device activity state transitions by target state",
		}, []string{"state"}),
		emergencyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "emergency_events_total",
			Help:      "Emergency events opened and closed per channel",
		}, []string{"channel", "action"}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "containment",
			Name:      "ingest_queue_dropped_total",
			Help:      "Messages dropped because the ingest queue was full",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "containment",
			Name:      "broker_connected",
			Help:      "1 while the broker connection is up",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		m.messages,
		m.samplesPersisted,
		m.violations,
		m.notifications,
		m.activityTransitions,
		m.emergencyEvents,
		m.queueDropped,
		m.brokerConnected,
	)
	return m
}

// Registry returns the underlying registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSamplePersisted() {
	if m == nil {
		return
	}
	m.samplesPersisted.Inc()
}

func (m *Metrics) IncViolation(reason, metric string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(reason, metric).Inc()
}

func (m *Metrics) IncNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTransition(state string) {
	if m == nil {
		return
	}
	m.activityTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncEmergency(channel, action string) {
	if m == nil {
		return
	}
	m.emergencyEvents.WithLabelValues(channel, action).Inc()
}

func (m *Metrics) IncQueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

func (m *Metrics) SetBrokerConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.brokerConnected.Set(1)
		return
	}
	m.brokerConnected.Set(0)
}
