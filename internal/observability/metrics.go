package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	InboundMessages  *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	AdapterErrors    *prometheus.CounterVec
	AdapterLatency   *prometheus.HistogramVec
	HeldLocks        prometheus.Gauge
	OutboundMessages *prometheus.CounterVec

	latency *latencyWindow
}

// NewMetrics registers instruments on reg, or the default registerer when
// reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by channel and kind.",
		}, []string{"channel", "kind"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_transitions_total",
			Help:      "Dialogue state transitions by from/to state.",
		}, []string{"from", "to"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_outcomes_total",
			Help:      "Processed messages by outcome.",
		}, []string{"outcome"}),
		AdapterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "External adapter errors by adapter and class.",
		}, []string{"adapter", "class"}),
		AdapterLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_latency_ms",
			Help:      "External adapter call latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"adapter"}),
		HeldLocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identity_locks_held",
			Help:      "Identities currently being processed.",
		}),
		OutboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound messages by channel and delivery status.",
		}, []string{"channel", "status"}),
		latency: newLatencyWindow(512),
	}
}

func (m *Metrics) ObserveInbound(channel, kind string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(channel, kind).Inc()
}

// DeclareOutcomes fixes the outcome set reported by LatencySnapshot. Other
// outcomes are counted as "other" there; Prometheus keeps the raw label.
func (m *Metrics) DeclareOutcomes(names ...string) {
	if m == nil {
		return
	}
	m.latency.declareOutcomes(names)
}

// ObserveMessage records one handled message: its outcome, its state change
// and its stage timings. Traces without an outcome are ignored.
func (m *Metrics) ObserveMessage(t MessageTrace) {
	if m == nil || t.Outcome == "" {
		return
	}
	m.Outcomes.WithLabelValues(t.Outcome).Inc()
	if t.From != "" && t.To != "" && t.From != t.To {
		m.Transitions.WithLabelValues(t.From, t.To).Inc()
	}
	m.latency.add(t)
}

func (m *Metrics) ObserveAdapterError(adapter, class string) {
	if m == nil {
		return
	}
	m.AdapterErrors.WithLabelValues(adapter, class).Inc()
}

func (m *Metrics) ObserveAdapterLatency(adapter string, d time.Duration) {
	if m == nil {
		return
	}
	m.AdapterLatency.WithLabelValues(adapter).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SetHeldLocks(n int) {
	if m == nil {
		return
	}
	m.HeldLocks.Set(float64(n))
}

func (m *Metrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(channel, status).Inc()
}

// LatencySnapshot summarizes the most recent messages.
func (m *Metrics) LatencySnapshot() LatencySnapshot {
	if m == nil {
		return newLatencyWindow(1).snapshot()
	}
	return m.latency.snapshot()
}

// ResetLatency drops the recorded traces. Declared outcomes are kept.
func (m *Metrics) ResetLatency() {
	if m == nil {
		return
	}
	m.latency.reset()
}

// MetricsHandler serves g, or the default gatherer when g is nil.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
