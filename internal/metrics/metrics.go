// Package metrics exposes service counters in prometheus format
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Auth event outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds service collectors on its own registry
// All methods are safe to call on nil *Metrics
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authEventsTotal     *prometheus.CounterVec
	mailEventsTotal     *prometheus.CounterVec
	tokensDeletedTotal  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		authEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_events_total",
				Help:      "Authentication events by kind and outcome",
			},
			[]string{"event", "outcome"},
		),
		mailEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mail_events_total",
				Help:      "Email jobs by stage: enqueued, sent, retried, dropped",
			},
			[]string{"template", "stage"},
		),
		tokensDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_tokens_deleted_total",
				Help:      "Expired refresh tokens removed by cleanup",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authEventsTotal,
		m.mailEventsTotal,
		m.tokensDeletedTotal,
	)

	return m
}

// Handler serving collected metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) AuthEvent(event string, outcome string) {
	if m == nil {
		return
	}
	m.authEventsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) MailEvent(template string, stage string) {
	if m == nil {
		return
	}
	m.mailEventsTotal.WithLabelValues(template, stage).Inc()
}

func (m *Metrics) TokensDeleted(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensDeletedTotal.Add(float64(count))
}
