// Package metrics exports Prometheus collectors for provider attempts,
// pipeline phases, report quality and the HTTP API.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/agentoven/psymarket/internal/orchestrator"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "psymarket"

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds every collector of the service.
type Metrics struct {
	// Provider metrics
	ProviderAttempts        *prometheus.CounterVec
	ProviderAttemptDuration *prometheus.HistogramVec
	BackupAnswers           *prometheus.CounterVec

	// Pipeline metrics
	PhaseDuration     *prometheus.HistogramVec
	AnalysesTotal     *prometheus.CounterVec
	AnalysesInFlight  prometheus.Gauge
	ReportQuality     prometheus.Histogram
	QualityIterations prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Default returns the process-wide Metrics registered on the default
// Prometheus registerer.
func Default() *Metrics {
	once.Do(func() {
		instance = New(prometheus.DefaultRegisterer)
	})
	return instance
}

// New creates collectors registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.ProviderAttempts = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Provider attempts by class, provider, role and outcome",
		},
		[]string{"class", "provider", "role", "outcome"},
	)

	m.ProviderAttemptDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempt_duration_seconds",
			Help:      "Provider attempt duration in seconds",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"class", "provider"},
	)

	m.BackupAnswers = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "backup_answers_total",
			Help:      "Requests answered by a backup provider, by class",
		},
		[]string{"class"},
	)

	m.PhaseDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Pipeline phase duration in seconds, including fallbacks",
			Buckets:   []float64{.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase", "outcome"},
	)

	m.AnalysesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Finished analyses by terminal status",
		},
		[]string{"status"},
	)

	m.AnalysesInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_in_flight",
			Help:      "Analyses currently running",
		},
	)

	m.ReportQuality = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "report_quality_score",
			Help:      "Final quality score of completed reports",
			Buckets:   []float64{50, 60, 70, 80, 85, 90, 95, 100},
		},
	)

	m.QualityIterations = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "quality_iterations",
			Help:      "Improvement rounds run per completed report",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"route", "method"},
	)

	return m
}

// ObserveAttempt records one provider attempt. It matches
// orchestrator.AttemptObserver.
func (m *Metrics) ObserveAttempt(a orchestrator.Attempt) {
	outcome := "failure"
	if a.Success {
		outcome = "success"
	}
	m.ProviderAttempts.WithLabelValues(string(a.Class), a.Provider, string(a.Role), outcome).Inc()
	m.ProviderAttemptDuration.WithLabelValues(string(a.Class), a.Provider).Observe(a.Duration.Seconds())
	if a.Success && a.Role == models.RoleBackup {
		m.BackupAnswers.WithLabelValues(string(a.Class)).Inc()
	}
}

// ObservePhase records one pipeline phase. It matches pipeline.Config.OnPhase.
func (m *Metrics) ObservePhase(phase string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.PhaseDuration.WithLabelValues(phase, outcome).Observe(elapsed.Seconds())
}

// RunStarted marks an analysis as in flight.
func (m *Metrics) RunStarted() {
	m.AnalysesInFlight.Inc()
}

// RunFinished records the terminal state of an analysis.
func (m *Metrics) RunFinished(run *models.AnalysisRun) {
	m.AnalysesInFlight.Dec()
	m.AnalysesTotal.WithLabelValues(string(run.Status)).Inc()
	if run.Status == models.AnalysisCompleted {
		m.ReportQuality.Observe(run.QualityScore)
		m.QualityIterations.Observe(float64(run.QualityIterations))
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
