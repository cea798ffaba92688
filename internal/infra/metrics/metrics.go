// internal/infra/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/infra/ratelimit"
)

const namespace = "irrigation_monitor"

// Metrics owns its own registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	runsCollected *prometheus.CounterVec
	alertsRaised  *prometheus.CounterVec
	limiterWaits  *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_cycles_total",
			Help:      "Collection cycles by type and outcome.",
		}, []string{"type", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_cycle_duration_seconds",
			Help:      "Wall time of collection cycles by type.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		runsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_collected_total",
			Help:      "Scheduled and actual runs collected.",
		}, []string{"kind"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by severity and failure type.",
		}, []string{"severity", "type"}),
		limiterWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time vendor calls spent waiting for quota.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"category"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time the last successful cycle finished.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.runsCollected,
		m.alertsRaised,
		m.limiterWaits,
		m.lastSuccess,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleFinished(rec *collection.CycleRecord) {
	if m == nil || rec == nil {
		return
	}
	m.cycles.WithLabelValues(string(rec.Type), string(rec.Outcome)).Inc()
	if !rec.FinishedAt.IsZero() && !rec.TriggeredAt.IsZero() {
		m.cycleDuration.WithLabelValues(string(rec.Type)).Observe(rec.FinishedAt.Sub(rec.TriggeredAt).Seconds())
	}
	m.runsCollected.WithLabelValues("scheduled").Add(float64(rec.ScheduledCollected))
	m.runsCollected.WithLabelValues("actual").Add(float64(rec.ActualCollected))
	if rec.Succeeded() {
		m.lastSuccess.Set(float64(rec.FinishedAt.Unix()))
	}
}

func (m *Metrics) AlertRaised(a alert.Alert) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(string(a.Severity), string(a.Type)).Inc()
}

// ObserveWait matches ratelimit.WithWaitObserver.
func (m *Metrics) ObserveWait(cat ratelimit.Category, d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWaits.WithLabelValues(string(cat)).Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
