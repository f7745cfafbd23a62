// Package pipeline runs one psychological market analysis end to end:
// six provider-backed phases, report compilation and the quality gate.
//
// Phases run strictly in order because each one consumes earlier output.
// A phase that exhausts its provider chain aborts the run. A report that
// stays below the quality threshold after the improvement loop is still
// returned, with a warning.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/agentoven/psymarket/internal/orchestrator"
	"github.com/agentoven/psymarket/internal/quality"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// UnknownService is recorded in ServicesUsed when a phase result carries no
// provider name.
const UnknownService = "unknown"

// Phase names, in execution order.
const (
	PhaseCollectMarketData   = "collect_market_data"
	PhasePsychologyAnalysis  = "psychology_analysis"
	PhaseCompetitorAnalysis  = "competitor_analysis"
	PhaseMentalDrivers       = "mental_drivers"
	PhaseObjectionAnalysis   = "objection_analysis"
	PhaseMarketingStrategies = "marketing_strategies"
	PhaseCompileReport       = "compile_report"
	PhaseQualityGate         = "quality_gate"
)

// Progress checkpoints.
const (
	StepInit             = "init"
	StepDataCollection   = "data_collection"
	StepProcessing       = "processing"
	StepReportGeneration = "report_generation"
	StepCompleted        = "completed"
	StepError            = "error"
)

// expansionCandidates are the sections the quality loop may grow, in order.
var expansionCandidates = []string{
	models.SectionAvatar,
	models.SectionMentalDrivers,
	models.SectionMarketing,
}

// Executor runs a request down a provider chain.
type Executor interface {
	ExecuteWithFallback(ctx context.Context, class models.ServiceClass, req models.InvocationRequest) (*models.InvocationResult, error)
}

// ProgressFunc receives checkpoint events. It must not block.
type ProgressFunc func(step string, percent int, message string)

// Config tunes a Pipeline.
type Config struct {
	MaxQualityIterations int
	PhaseRetries         int
	PhaseRetryDelay      time.Duration
	// Primaries are the primary provider names of every class; anything
	// else that served a phase counts as a backup.
	Primaries []string
	// OnPhase, when set, is called after every provider-backed phase.
	OnPhase func(phase string, elapsed time.Duration, err error)
}

// Pipeline executes analyses. It holds no per-run state and can serve
// concurrent runs.
type Pipeline struct {
	exec      Executor
	validator *quality.Validator
	cfg       Config
	primaries map[string]bool
	now       func() time.Time
}

// New creates a Pipeline.
func New(exec Executor, validator *quality.Validator, cfg Config) *Pipeline {
	if cfg.MaxQualityIterations < 0 {
		cfg.MaxQualityIterations = 0
	}
	if cfg.PhaseRetries < 0 {
		cfg.PhaseRetries = 0
	}
	primaries := make(map[string]bool, len(cfg.Primaries))
	for _, p := range cfg.Primaries {
		primaries[p] = true
	}
	return &Pipeline{exec: exec, validator: validator, cfg: cfg, primaries: primaries, now: time.Now}
}

// PhaseError reports the phase that aborted a run.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// RunAnalysis executes every phase for in. The returned run is never nil.
// On failure the error is a *PhaseError and run.Success is false.
func (p *Pipeline) RunAnalysis(ctx context.Context, in models.AnalysisInput, onProgress ProgressFunc) (*models.AnalysisRun, error) {
	start := p.now()
	run := &models.AnalysisRun{
		Status:       models.AnalysisProcessing,
		Input:        in,
		CreatedAt:    start,
		ServicesUsed: []string{},
		Errors:       []string{},
		Warnings:     []string{},
	}
	progress := func(step string, percent int, msg string) {
		run.CurrentStep = step
		run.Progress = percent
		if onProgress != nil {
			onProgress(step, percent, msg)
		}
	}

	logger := log.With().Str("product", in.Product.Name).Logger()
	logger.Info().Msg("🚀 Analysis started")
	progress(StepInit, 10, "Iniciando análise psicológica")

	fail := func(phase string, err error) (*models.AnalysisRun, error) {
		perr := &PhaseError{Phase: phase, Err: err}
		run.Status = models.AnalysisFailed
		run.Success = false
		run.FailedPhase = phase
		run.ErrorMessage = "Falha na execução: " + err.Error()
		run.Errors = append(run.Errors, run.ErrorMessage)
		run.FallbackSuggestions = append([]string(nil), FallbackSuggestions...)
		run.BackupServicesUsed = p.backups(run.ServicesUsed)
		p.finish(run, start)
		progress(StepError, run.Progress, run.ErrorMessage)
		logger.Error().Str("phase", phase).Err(err).Msg("💥 Analysis failed")
		return run, perr
	}

	var out phaseOutputs
	phases := []struct {
		name  string
		class models.ServiceClass
		build func() models.InvocationRequest
		dest  **models.InvocationResult
	}{
		{PhaseCollectMarketData, models.ServiceSearch, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: marketQuery(in), Options: models.InvocationOptions{NumResults: 8}}
		}, &out.market},
		{PhasePsychologyAnalysis, models.ServiceAnalysis, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: psychologyPrompt(in, summarizeMarketData(out.market)), Options: models.InvocationOptions{MaxTokens: 3000}}
		}, &out.psychology},
		{PhaseCompetitorAnalysis, models.ServiceAnalysis, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: competitionPrompt(in, summarizeMarketData(out.market)), Options: models.InvocationOptions{MaxTokens: 2500}}
		}, &out.competition},
		{PhaseMentalDrivers, models.ServiceChat, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: driversPrompt(in, out.psychology.Content), Options: models.InvocationOptions{MaxTokens: 2800}}
		}, &out.drivers},
		{PhaseObjectionAnalysis, models.ServiceAnalysis, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: objectionsPrompt(in, out.psychology.Content), Options: models.InvocationOptions{MaxTokens: 2600}}
		}, &out.objections},
		{PhaseMarketingStrategies, models.ServiceChat, func() models.InvocationRequest {
			return models.InvocationRequest{Prompt: marketingPrompt(in, out.psychology.Content, out.drivers.Content), Options: models.InvocationOptions{MaxTokens: 3200}}
		}, &out.marketing},
	}

	progress(StepDataCollection, 30, "Coletando dados de mercado")
	for i, ph := range phases {
		if i == 1 {
			progress(StepProcessing, 60, "Executando análises psicológicas")
		}
		if err := ctx.Err(); err != nil {
			return fail(ph.name, err)
		}

		phaseStart := time.Now()
		res, err := p.runPhase(ctx, ph.class, ph.build())
		if p.cfg.OnPhase != nil {
			p.cfg.OnPhase(ph.name, time.Since(phaseStart), err)
		}
		if err != nil {
			return fail(ph.name, err)
		}
		*ph.dest = res
		provider := res.Provider
		if provider == "" {
			provider = UnknownService
		}
		run.ServicesUsed = append(run.ServicesUsed, provider)
		logger.Info().
			Str("phase", ph.name).
			Str("provider", provider).
			Dur("elapsed", time.Since(phaseStart)).
			Msg("✅ Phase completed")
	}

	progress(StepReportGeneration, 80, "Compilando relatório final")
	report := compileReport(in, out, p.now())

	report, verdict, iterations, err := p.qualityGate(ctx, report, run)
	if err != nil {
		return fail(PhaseQualityGate, err)
	}

	run.Report = report
	run.QualityScore = verdict.Score
	run.QualityIterations = iterations
	run.Quality = p.validator.QualityReport(verdict)
	run.Stats = reportStats(report, p.validator.MinLength())
	run.BackupServicesUsed = p.backups(run.ServicesUsed)
	run.NextSteps = runNextSteps(verdict.Score, len(run.BackupServicesUsed) > 0)
	run.Success = true
	run.Status = models.AnalysisCompleted
	p.finish(run, start)

	progress(StepCompleted, 100, fmt.Sprintf("Análise concluída - qualidade %.1f%%", verdict.Score))
	logger.Info().
		Float64("score", verdict.Score).
		Int("iterations", iterations).
		Float64("seconds", run.ExecutionTimeSeconds).
		Msg("🎉 Analysis completed")
	return run, nil
}

// runPhase calls the executor once, or up to PhaseRetries more times when
// the whole chain was exhausted.
func (p *Pipeline) runPhase(ctx context.Context, class models.ServiceClass, req models.InvocationRequest) (*models.InvocationResult, error) {
	if p.cfg.PhaseRetries == 0 {
		return p.exec.ExecuteWithFallback(ctx, class, req)
	}

	op := func() (*models.InvocationResult, error) {
		res, err := p.exec.ExecuteWithFallback(ctx, class, req)
		if err == nil {
			return res, nil
		}
		var exhausted *orchestrator.AllProvidersFailedError
		if errors.As(err, &exhausted) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.PhaseRetryDelay), uint64(p.cfg.PhaseRetries)),
		ctx,
	)
	return backoff.RetryNotifyWithData(op, b, func(err error, wait time.Duration) {
		log.Warn().Str("class", string(class)).Dur("wait", wait).Err(err).Msg("Retrying phase")
	})
}

// qualityGate validates report and, while it fails, runs up to
// MaxQualityIterations improvement rounds.
func (p *Pipeline) qualityGate(ctx context.Context, report models.Report, run *models.AnalysisRun) (models.Report, models.ValidationVerdict, int, error) {
	verdict := p.validator.ValidateReport(report)
	iterations := 0

	for !verdict.Passed && iterations < p.cfg.MaxQualityIterations {
		if err := ctx.Err(); err != nil {
			return report, verdict, iterations, err
		}
		iterations++
		log.Info().
			Int("iteration", iterations).
			Float64("score", verdict.Score).
			Msg("Report below quality threshold, improving")
		report = p.improve(ctx, report, run)
		verdict = p.validator.ValidateReport(report)
	}

	if !verdict.Passed {
		run.Warnings = append(run.Warnings, fmt.Sprintf(
			"Qualidade final %.1f%% abaixo do ideal após %d iterações de melhoria", verdict.Score, iterations))
		log.Warn().Float64("score", verdict.Score).Int("iterations", iterations).Msg("Report delivered below threshold")
	}
	return report, verdict, iterations, nil
}

// improve runs one improvement round and returns the new report. Failed
// expansions leave their section unchanged and add a warning.
func (p *Pipeline) improve(ctx context.Context, report models.Report, run *models.AnalysisRun) models.Report {
	if utf8.RuneCountInString(report.Text()) < p.validator.MinLength() {
		for _, name := range expansionCandidates {
			sec, ok := report.Get(name)
			if !ok {
				continue
			}
			res, err := p.exec.ExecuteWithFallback(ctx, models.ServiceChat, models.InvocationRequest{
				Prompt:  expansionPrompt(name, sec.Content()),
				Options: models.InvocationOptions{MaxTokens: 2000},
			})
			if err != nil {
				run.Warnings = append(run.Warnings, fmt.Sprintf("Erro ao expandir seção %s: %v", name, err))
				continue
			}
			report = report.With(expandSection(sec, res.Content))
		}
	}

	if !mentionsImplementation(report) && !report.Has(models.SectionDetailedImplementation) {
		report = report.With(detailedImplementationSection())
	}
	return report
}

func (p *Pipeline) backups(used []string) []string {
	out := []string{}
	for _, name := range used {
		if name != UnknownService && !p.primaries[name] {
			out = append(out, name)
		}
	}
	return out
}

func (p *Pipeline) finish(run *models.AnalysisRun, start time.Time) {
	end := p.now()
	run.CompletedAt = &end
	run.ExecutionTimeSeconds = end.Sub(start).Seconds()
}
