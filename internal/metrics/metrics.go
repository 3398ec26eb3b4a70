// Package metrics exposes Prometheus counters for the chat proxy.
//
// Metrics:
//   - chatproxy_upstream_attempts_total: upstream generateContent calls by model and status
//   - chatproxy_upstream_fallbacks_total: candidates abandoned for the next one, by model and status
//   - chatproxy_upstream_latency_seconds: upstream call latency by model
//   - chatproxy_chat_responses_total: chat endpoint outcomes by kind
//
// A nil *Collector is valid and records nothing, which is what the
// serverless entry point uses.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatproxy"

type Collector struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	responses *prometheus.CounterVec
}

// NewCollector registers the chat proxy metrics with registry. If registry is
// nil a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "attempts_total",
				Help:      "Upstream generateContent calls by model and HTTP status",
			},
			[]string{"model", "status"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "fallbacks_total",
				Help:      "Candidate models abandoned in favour of the next one",
			},
			[]string{"model", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "latency_seconds",
				Help:      "Upstream call latency in seconds",
				// LLM calls range from sub-second to tens of seconds
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "responses_total",
				Help:      "Chat endpoint responses by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(c.attempts, c.fallbacks, c.latency, c.responses)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordAttempt records one upstream call. status is 0 for transport failures.
func (c *Collector) RecordAttempt(model string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(model, statusLabel(status)).Inc()
	c.latency.WithLabelValues(model).Observe(elapsed.Seconds())
}

func (c *Collector) RecordFallback(model string, status int) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(model, statusLabel(status)).Inc()
}

// RecordResponse counts a chat endpoint outcome ("ok", "validation", "blocked", ...).
func (c *Collector) RecordResponse(outcome string) {
	if c == nil {
		return
	}
	c.responses.WithLabelValues(outcome).Inc()
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}
