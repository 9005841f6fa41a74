// Package metrics exposes Prometheus instrumentation for the voice
// gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	AudioBytesTotal  *prometheus.CounterVec
	RelayedTotal     prometheus.Counter
	AdmissionDenials *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "parleo"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "voice_sessions_active",
		Help:      "Currently open voice sessions",
	})

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_total",
			Help:      "Voice sessions started, by language and mode",
		},
		[]string{"language", "mode"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_session_duration_seconds",
			Help:      "Voice session length in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"reason"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_audio_bytes_total",
			Help:      "PCM bytes moved, by direction",
		},
		[]string{"direction"},
	)

	relayedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_relayed_messages_total",
		Help:      "Provider messages forwarded to clients",
	})

	admissionDenials := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_admission_denials_total",
			Help:      "Sessions refused by admission control",
		},
		[]string{"reason"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_errors_total",
			Help:      "Gateway errors by stage",
		},
		[]string{"stage"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		relayedTotal,
		admissionDenials,
		errorsTotal,
	)

	return &Metrics{
		registry:         registry,
		SessionsActive:   sessionsActive,
		SessionsTotal:    sessionsTotal,
		SessionDuration:  sessionDuration,
		AudioBytesTotal:  audioBytesTotal,
		RelayedTotal:     relayedTotal,
		AdmissionDenials: admissionDenials,
		ErrorsTotal:      errorsTotal,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSessionStart records an admitted session.
func (m *Metrics) ObserveSessionStart(language, mode string) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(language, mode).Inc()
}

// ObserveSessionEnd records a finished session and its length.
func (m *Metrics) ObserveSessionEnd(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionDuration.WithLabelValues(reason).Observe(d.Seconds())
}

// ObserveInboundAudio counts learner PCM bytes.
func (m *Metrics) ObserveInboundAudio(n int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues("in").Add(float64(n))
}

// ObserveRelayed counts one forwarded provider message.
func (m *Metrics) ObserveRelayed(n int) {
	if m == nil {
		return
	}
	m.RelayedTotal.Inc()
	m.AudioBytesTotal.WithLabelValues("out").Add(float64(n))
}

// ObserveDenial counts a refused admission.
func (m *Metrics) ObserveDenial(reason string) {
	if m == nil {
		return
	}
	m.AdmissionDenials.WithLabelValues(reason).Inc()
}

// ObserveError counts a gateway error at the given stage.
func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}
