// Package telemetry exposes pipeline measurements as Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eleven-am/voice-callcenter/internal/dialogue"
)

const namespace = "callcenter"

// Metrics implements callsession.Observer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	activeCalls       prometheus.Gauge
	callsTotal        *prometheus.CounterVec
	callDuration      prometheus.Histogram
	audioDropped      *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	generationLatency prometheus.Histogram
	bargeIns          prometheus.Counter
	asrReconnects     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently registered",
		}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of finished calls",
		}, []string{"reason"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of finished calls in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		audioDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Caller audio chunks dropped before recognition",
		}, []string{"reason"}), // reason: unknown_call, inactive, out_of_order, overflow
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of finished dialogue turns",
		}, []string{"status"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Time from final utterance to generated reply",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15},
		}),
		bargeIns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of caller interruptions of AI playback",
		}),
		asrReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_reconnects_total",
			Help:      "Recognition stream reconnect attempts",
		}, []string{"status"}), // status: success, error
	}

	m.registry.MustRegister(
		m.activeCalls,
		m.callsTotal,
		m.callDuration,
		m.audioDropped,
		m.turnsTotal,
		m.generationLatency,
		m.bargeIns,
		m.asrReconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CallStarted() {
	m.activeCalls.Inc()
}

func (m *Metrics) CallEnded(reason string, d time.Duration) {
	m.activeCalls.Dec()
	m.callsTotal.WithLabelValues(reason).Inc()
	m.callDuration.Observe(d.Seconds())
}

func (m *Metrics) AudioDropped(reason string) {
	m.audioDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) TurnFinished(status dialogue.TurnStatus, latency time.Duration) {
	m.turnsTotal.WithLabelValues(string(status)).Inc()
	if latency > 0 {
		m.generationLatency.Observe(latency.Seconds())
	}
}

func (m *Metrics) BargeIn() {
	m.bargeIns.Inc()
}

func (m *Metrics) ASRReconnect(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.asrReconnects.WithLabelValues(status).Inc()
}

// BusStats is the part of the event bus exported as metrics.
type BusStats interface {
	Published() uint64
	Dropped() uint64
	SubscriberCount() int
}

// WatchBus exports the bus counters, read at scrape time.
func (m *Metrics) WatchBus(bus BusStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the call event bus",
		}, func() float64 { return float64(bus.Published()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber was full",
		}, func() float64 { return float64(bus.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Current number of event bus subscribers",
		}, func() float64 { return float64(bus.SubscriberCount()) }),
	)
}

// WatchUnknownAudio exports the registry's count of audio for unregistered calls.
func (m *Metrics) WatchUnknownAudio(fn func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_call_audio_total",
		Help:      "Audio submitted for calls that are not registered",
	}, func() float64 { return float64(fn()) }))
}
