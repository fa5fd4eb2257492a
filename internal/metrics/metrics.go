// Package metrics exposes Prometheus collectors for the registries, the HTTP
// API and the price feeder.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/oracle/internal/domain"
)

const namespace = "oracle"

// Metrics holds a private Prometheus registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	events       *prometheus.CounterVec
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	feederPushes *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Total number of registry events emitted.",
			},
			[]string{"registry", "event"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
		feederPushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feeder",
				Name:      "pushes_total",
				Help:      "Total number of feeder price pushes by outcome.",
			},
			[]string{"symbol", "result"},
		),
	}

	m.Registry.MustRegister(
		m.events,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.feederPushes,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Notifier returns a registry notifier counting events under the given label.
func (m *Metrics) Notifier(registryName string) *EventCounter {
	return &EventCounter{registry: registryName, events: m.events}
}

// RecordPush counts one feeder push for symbol.
func (m *Metrics) RecordPush(symbol string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.feederPushes.WithLabelValues(symbol, result).Inc()
}

// EventCounter counts registry events per event name.
type EventCounter struct {
	registry string
	events   *prometheus.CounterVec
}

func (c *EventCounter) Notify(_ context.Context, events ...domain.Event) {
	for _, e := range events {
		c.events.WithLabelValues(c.registry, e.EventName()).Inc()
	}
}

// Instrument wraps next with request count and latency collection. The route
// label is the matched ServeMux pattern, keeping label cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
