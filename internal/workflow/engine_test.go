package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/pipeline"
	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/internal/workflow"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runnerFunc adapts a function to workflow.Runner.
type runnerFunc func(ctx context.Context, in models.AnalysisInput, onProgress pipeline.ProgressFunc) (*models.AnalysisRun, error)

func (f runnerFunc) RunAnalysis(ctx context.Context, in models.AnalysisInput, onProgress pipeline.ProgressFunc) (*models.AnalysisRun, error) {
	return f(ctx, in, onProgress)
}

type recordingNotifier struct {
	mu        sync.Mutex
	progress  []models.ProgressEvent
	completed []string
	failed    []string
}

func (n *recordingNotifier) Progress(_ context.Context, ev models.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, ev)
}

func (n *recordingNotifier) Completed(_ context.Context, run *models.AnalysisRun) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, run.ID)
}

func (n *recordingNotifier) Failed(_ context.Context, run *models.AnalysisRun) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, run.ID)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished []models.AnalysisStatus
}

func (o *countingObserver) RunStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) RunFinished(run *models.AnalysisRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, run.Status)
}

func input() models.AnalysisInput {
	return models.AnalysisInput{Product: models.ProductInfo{Name: "Curso X"}}
}

func newStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStart_Completes(t *testing.T) {
	s := newStore(t)
	notifier := &recordingNotifier{}
	observer := &countingObserver{}
	runner := runnerFunc(func(_ context.Context, in models.AnalysisInput, onProgress pipeline.ProgressFunc) (*models.AnalysisRun, error) {
		onProgress(pipeline.StepInit, 10, "início")
		onProgress(pipeline.StepCompleted, 100, "fim")
		return &models.AnalysisRun{
			Status:       models.AnalysisCompleted,
			Success:      true,
			Input:        in,
			QualityScore: 92,
			Report:       models.Report{Sections: []models.Section{models.TextSection(models.SectionAvatar, "perfil")}},
		}, nil
	})
	e := workflow.NewEngine(s, runner, workflow.WithNotifier(notifier), workflow.WithObserver(observer))

	run, err := e.Start(context.Background(), input())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.AnalysisPending, run.Status)
	require.NotNil(t, run.EstimatedCompletion)

	e.Wait()

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	assert.True(t, got.Success)
	assert.Equal(t, run.CreatedAt, got.CreatedAt, "creation time is kept")
	assert.True(t, got.Report.Has(models.SectionAvatar))

	assert.Equal(t, []string{run.ID}, notifier.completed)
	require.Len(t, notifier.progress, 2)
	assert.Equal(t, 100, notifier.progress[1].Percent)
	assert.Equal(t, run.ID, notifier.progress[0].RunID)
	assert.Equal(t, 1, observer.started)
	assert.Equal(t, []models.AnalysisStatus{models.AnalysisCompleted}, observer.finished)
	assert.Zero(t, e.Running())
}

func TestStart_RecordsProgress(t *testing.T) {
	s := newStore(t)
	reached := make(chan string)
	release := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, in models.AnalysisInput, onProgress pipeline.ProgressFunc) (*models.AnalysisRun, error) {
		onProgress(pipeline.StepDataCollection, 30, "coletando")
		reached <- pipeline.StepDataCollection
		<-release
		return &models.AnalysisRun{Status: models.AnalysisCompleted, Success: true, Input: in}, nil
	})
	e := workflow.NewEngine(s, runner)

	run, err := e.Start(context.Background(), input())
	require.NoError(t, err)
	<-reached

	mid, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisProcessing, mid.Status)
	assert.Equal(t, 30, mid.Progress)
	assert.Equal(t, pipeline.StepDataCollection, mid.CurrentStep)
	assert.Equal(t, 1, e.Running())

	close(release)
	e.Wait()
}

func TestStart_Fails(t *testing.T) {
	s := newStore(t)
	notifier := &recordingNotifier{}
	runner := runnerFunc(func(_ context.Context, in models.AnalysisInput, _ pipeline.ProgressFunc) (*models.AnalysisRun, error) {
		run := &models.AnalysisRun{
			Status:       models.AnalysisFailed,
			Input:        in,
			FailedPhase:  pipeline.PhaseMentalDrivers,
			ErrorMessage: "Falha na execução: all providers failed",
			Errors:       []string{"Falha na execução: all providers failed"},
		}
		return run, &pipeline.PhaseError{Phase: pipeline.PhaseMentalDrivers, Err: errors.New("all providers failed")}
	})
	e := workflow.NewEngine(s, runner, workflow.WithNotifier(notifier))

	run, err := e.Start(context.Background(), input())
	require.NoError(t, err)
	e.Wait()

	got, _ := s.GetRun(context.Background(), run.ID)
	assert.Equal(t, models.AnalysisFailed, got.Status)
	assert.Equal(t, pipeline.PhaseMentalDrivers, got.FailedPhase)
	assert.Equal(t, "Falha na execução: all providers failed", got.ErrorMessage)
	assert.Len(t, got.Errors, 1, "message recorded once")
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []string{run.ID}, notifier.failed)
}

func TestCancel(t *testing.T) {
	s := newStore(t)
	notifier := &recordingNotifier{}
	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, in models.AnalysisInput, _ pipeline.ProgressFunc) (*models.AnalysisRun, error) {
		close(started)
		<-ctx.Done()
		return &models.AnalysisRun{Status: models.AnalysisFailed, Input: in, FailedPhase: pipeline.PhasePsychologyAnalysis},
			&pipeline.PhaseError{Phase: pipeline.PhasePsychologyAnalysis, Err: ctx.Err()}
	})
	e := workflow.NewEngine(s, runner, workflow.WithNotifier(notifier))

	run, err := e.Start(context.Background(), input())
	require.NoError(t, err)
	<-started

	assert.True(t, e.Cancel(run.ID))
	e.Wait()
	assert.False(t, e.Cancel(run.ID), "finished runs cannot be canceled")

	got, _ := s.GetRun(context.Background(), run.ID)
	assert.Equal(t, models.AnalysisCanceled, got.Status)
	assert.False(t, got.Success)
	assert.Equal(t, pipeline.PhasePsychologyAnalysis, got.FailedPhase)
	assert.Equal(t, []string{run.ID}, notifier.failed)
}

func TestShutdown_CancelsRunning(t *testing.T) {
	s := newStore(t)
	runner := runnerFunc(func(ctx context.Context, in models.AnalysisInput, _ pipeline.ProgressFunc) (*models.AnalysisRun, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := workflow.NewEngine(s, runner)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := e.Start(context.Background(), input())
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	for _, id := range ids {
		got, err := s.GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.AnalysisCanceled, got.Status)
	}
}
