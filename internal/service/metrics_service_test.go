package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

func TestMetricsServiceObservesRuns(t *testing.T) {
	m := NewMetricsService()

	m.ObserveGeneration("term-1", scheduler.Progress{Generation: 0, BestFitness: 0.25})
	m.ObserveGeneration("term-1", scheduler.Progress{Generation: 1, BestFitness: 0.5})
	m.ObserveRun("term-1", scheduler.StateConverged, 1, 2*time.Second)
	m.RecordSave(true)
	m.RecordSave(false)
	m.RecordRunLookup(false)

	body := scrape(t, m)
	assert.Contains(t, body, "timetable_generations_total 2")
	assert.Contains(t, body, `timetable_best_fitness{term_id="term-1"} 1`)
	assert.Contains(t, body, `timetable_runs_total{state="CONVERGED"} 1`)
	assert.Contains(t, body, `timetable_saves_total{outcome="failure"} 1`)
	assert.Contains(t, body, `timetable_saves_total{outcome="success"} 1`)
	assert.Contains(t, body, `timetable_run_store_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, `timetable_run_duration_seconds_count{state="CONVERGED"} 1`)
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	assert.True(t, strings.Contains(scrape(t, m), `http_requests_total{method="GET",path="/health",status="200"} 1`))

	var nilMetrics *MetricsService
	rec := httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotPanics(t, func() { nilMetrics.ObserveRun("t", scheduler.StateFailed, 0, time.Second) })
}

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
