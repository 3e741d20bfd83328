package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and timetable searches.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	generations     prometheus.Counter
	bestFitness     *prometheus.GaugeVec
	runDuration     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	savesTotal      *prometheus.CounterVec
	runStoreLookups *prometheus.CounterVec
}

var _ scheduler.Observer = (*MetricsService)(nil)

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	generations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_generations_total",
		Help: "Total number of evolved generations across all runs",
	})

	bestFitness := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timetable_best_fitness",
		Help: "Best fitness reached by the latest run of a term",
	}, []string{"term_id"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_run_duration_seconds",
		Help:    "Wall-clock duration of timetable searches",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"state"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_runs_total",
		Help: "Total number of finished timetable searches by final state",
	}, []string{"state"})

	savesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_saves_total",
		Help: "Total number of timetable save attempts by outcome",
	}, []string{"outcome"})

	runStoreLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_run_store_lookups_total",
		Help: "Run store lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, generations, bestFitness, runDuration, runsTotal, savesTotal, runStoreLookups, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		generations:     generations,
		bestFitness:     bestFitness,
		runDuration:     runDuration,
		runsTotal:       runsTotal,
		savesTotal:      savesTotal,
		runStoreLookups: runStoreLookups,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveGeneration counts an evolved generation and tracks the term's best fitness.
func (m *MetricsService) ObserveGeneration(termID string, p scheduler.Progress) {
	if m == nil {
		return
	}
	m.generations.Inc()
	m.bestFitness.WithLabelValues(termID).Set(p.BestFitness)
}

// ObserveRun records the outcome of a finished search.
func (m *MetricsService) ObserveRun(termID string, state scheduler.State, fitness float64, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(state)).Inc()
	m.runDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
	m.bestFitness.WithLabelValues(termID).Set(fitness)
}

// RecordSave counts a save attempt.
func (m *MetricsService) RecordSave(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.savesTotal.WithLabelValues(outcome).Inc()
}

// RecordRunLookup counts run store hits and misses.
func (m *MetricsService) RecordRunLookup(hit bool) {
	if m == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	m.runStoreLookups.WithLabelValues(result).Inc()
}
