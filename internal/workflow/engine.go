// Package workflow runs analyses in the background.
//
// Execution flow:
//  1. Start records a pending run and returns its id immediately
//  2. A goroutine drives the pipeline, persisting each progress checkpoint
//  3. The finished run replaces the stored record and the notifier is told
//  4. Cancel stops a run between phases; it ends with status "canceled"
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/psymarket/internal/pipeline"
	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/pkg/contracts"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("psymarket/workflow")

const canceledMessage = "Análise cancelada pelo usuário"

// Runner executes one analysis synchronously.
type Runner interface {
	RunAnalysis(ctx context.Context, in models.AnalysisInput, onProgress pipeline.ProgressFunc) (*models.AnalysisRun, error)
}

// RunObserver is told when runs start and finish.
type RunObserver interface {
	RunStarted()
	RunFinished(run *models.AnalysisRun)
}

// Engine executes analyses asynchronously.
type Engine struct {
	store    store.AnalysisStore
	runner   Runner
	notifier contracts.RunNotifier
	observer RunObserver
	estimate time.Duration

	// Running executions: runID → cancel func
	runsMu sync.RWMutex
	runs   map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sends run events to n.
func WithNotifier(n contracts.RunNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver reports run lifecycle to o.
func WithObserver(o RunObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithEstimate sets the expected run duration used for estimated_completion.
func WithEstimate(d time.Duration) Option {
	return func(e *Engine) { e.estimate = d }
}

// NewEngine creates an analysis engine.
func NewEngine(s store.AnalysisStore, runner Runner, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		runner:   runner,
		estimate: 5 * time.Minute,
		runs:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start records a new run for in and executes it in the background.
// The returned run is the pending record.
func (e *Engine) Start(ctx context.Context, in models.AnalysisInput) (*models.AnalysisRun, error) {
	now := time.Now().UTC()
	eta := now.Add(e.estimate)
	run := &models.AnalysisRun{
		ID:                  uuid.New().String(),
		Status:              models.AnalysisPending,
		Input:               in,
		CreatedAt:           now,
		EstimatedCompletion: &eta,
		ServicesUsed:        []string{},
		BackupServicesUsed:  []string{},
		Errors:              []string{},
		Warnings:            []string{},
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create analysis run: %w", err)
	}

	execCtx, cancel := context.WithCancel(context.Background())
	e.runsMu.Lock()
	e.runs[run.ID] = cancel
	e.runsMu.Unlock()

	if e.observer != nil {
		e.observer.RunStarted()
	}
	log.Info().
		Str("run_id", run.ID).
		Str("product", in.Product.Name).
		Msg("🚀 Analysis queued")

	e.wg.Add(1)
	go e.executeAsync(execCtx, run.Clone())
	return run, nil
}

// Cancel stops a running analysis. It returns false when the run is not
// in progress.
func (e *Engine) Cancel(runID string) bool {
	e.runsMu.Lock()
	cancel, ok := e.runs[runID]
	if ok {
		cancel()
		delete(e.runs, runID)
	}
	e.runsMu.Unlock()
	if ok {
		log.Info().Str("run_id", runID).Msg("🛑 Analysis cancel requested")
	}
	return ok
}

// Running returns the number of analyses in progress.
func (e *Engine) Running() int {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	return len(e.runs)
}

// Wait blocks until every started run has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels every running analysis and waits for them to record
// their final state, or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.runsMu.Lock()
	for id, cancel := range e.runs {
		cancel()
		delete(e.runs, id)
	}
	e.runsMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) executeAsync(ctx context.Context, run *models.AnalysisRun) {
	defer e.wg.Done()
	defer func() {
		e.runsMu.Lock()
		delete(e.runs, run.ID)
		e.runsMu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "analysis.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("analysis.id", run.ID),
		attribute.String("analysis.product", run.Input.Product.Name),
	)

	progress := func(step string, percent int, msg string) {
		if step == pipeline.StepError {
			return
		}
		run.Status = models.AnalysisProcessing
		run.CurrentStep = step
		run.Progress = percent
		if err := e.store.UpdateRun(context.Background(), run); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record progress")
		}
		if e.notifier != nil {
			e.notifier.Progress(ctx, models.ProgressEvent{
				RunID:     run.ID,
				Step:      step,
				Percent:   percent,
				Message:   msg,
				Timestamp: time.Now().UTC(),
			})
		}
	}

	result, err := e.runner.RunAnalysis(ctx, run.Input, progress)
	if result == nil {
		result = run
	}
	result.ID = run.ID
	result.CreatedAt = run.CreatedAt
	result.EstimatedCompletion = run.EstimatedCompletion

	switch {
	case err == nil:
		e.completeRun(result)
	case errors.Is(err, context.Canceled):
		span.SetStatus(codes.Error, "canceled")
		e.cancelRun(result)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.failRun(result, err)
	}
}

// ── Run Lifecycle ───────────────────────────────────────────

func (e *Engine) completeRun(run *models.AnalysisRun) {
	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to update completed run")
	}
	e.finished(run)
	if e.notifier != nil {
		e.notifier.Completed(context.Background(), run)
	}

	log.Info().
		Str("run_id", run.ID).
		Float64("quality", run.QualityScore).
		Float64("seconds", run.ExecutionTimeSeconds).
		Strs("backups", run.BackupServicesUsed).
		Msg("🎉 Analysis completed")
}

func (e *Engine) failRun(run *models.AnalysisRun, cause error) {
	run.Status = models.AnalysisFailed
	run.Success = false
	if run.ErrorMessage == "" {
		run.ErrorMessage = "Falha na execução: " + cause.Error()
		run.Errors = append(run.Errors, run.ErrorMessage)
	}
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to update failed run")
	}
	e.finished(run)
	if e.notifier != nil {
		e.notifier.Failed(context.Background(), run)
	}

	log.Error().
		Str("run_id", run.ID).
		Str("phase", run.FailedPhase).
		Str("error", run.ErrorMessage).
		Msg("💥 Analysis failed")
}

func (e *Engine) cancelRun(run *models.AnalysisRun) {
	run.Status = models.AnalysisCanceled
	run.Success = false
	run.ErrorMessage = canceledMessage
	run.Errors = []string{canceledMessage}
	run.FallbackSuggestions = nil
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to update canceled run")
	}
	e.finished(run)
	if e.notifier != nil {
		e.notifier.Failed(context.Background(), run)
	}
	log.Warn().Str("run_id", run.ID).Str("phase", run.FailedPhase).Msg("Analysis canceled")
}

func (e *Engine) finished(run *models.AnalysisRun) {
	if e.observer != nil {
		e.observer.RunFinished(run)
	}
}
