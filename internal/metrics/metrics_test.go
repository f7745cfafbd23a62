package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/metrics"
	"github.com/agentoven/psymarket/internal/orchestrator"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAttempt(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveAttempt(orchestrator.Attempt{Class: models.ServiceChat, Provider: "OpenAI GPT-4o", Role: models.RolePrimary, Reason: "status 500", Duration: time.Second})
	m.ObserveAttempt(orchestrator.Attempt{Class: models.ServiceChat, Provider: "Groq Llama3", Role: models.RoleBackup, Success: true, Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("chat", "OpenAI GPT-4o", "primary", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("chat", "Groq Llama3", "backup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupAnswers.WithLabelValues("chat")))
}

func TestObservePhase(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObservePhase("collect_market_data", time.Second, nil)
	m.ObservePhase("mental_drivers", time.Second, errors.New("exhausted"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.PhaseDuration))
}

func TestRunLifecycle(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.RunStarted()
	m.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesInFlight))

	m.RunFinished(&models.AnalysisRun{Status: models.AnalysisCompleted, QualityScore: 91})
	m.RunFinished(&models.AnalysisRun{Status: models.AnalysisFailed})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.AnalysesInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ReportQuality))
}
