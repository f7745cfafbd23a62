// Package handlers implements the HTTP handlers of the psymarket API.
// Analyses run asynchronously: a POST queues a run and callers poll its
// status until the report is ready.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/agentoven/psymarket/internal/render"
	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds the start-analysis request body.
const maxBodyBytes = 1 << 20

// AnalysisEngine starts and cancels background analyses.
type AnalysisEngine interface {
	Start(ctx context.Context, in models.AnalysisInput) (*models.AnalysisRun, error)
	Cancel(runID string) bool
}

// SystemMonitor reports provider availability.
type SystemMonitor interface {
	Status() models.SystemStatus
	TestAll(ctx context.Context) []models.ProbeResult
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine AnalysisEngine
	Store  store.AnalysisStore
	System SystemMonitor

	validate *validator.Validate
}

// New creates a new Handlers instance with all dependencies.
func New(engine AnalysisEngine, s store.AnalysisStore, sys SystemMonitor) *Handlers {
	v := validator.New()
	// report json field names in validation errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handlers{Engine: engine, Store: s, System: sys, validate: v}
}

// ══════════════════════════════════════════════════════════════
// ── Analysis Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// StartAnalysis queues a new analysis and answers 202 with the poll URL.
func (h *Handlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	var in models.AnalysisInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	normalizeInput(&in)

	if err := h.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid analysis input",
				"details": validationDetails(verrs),
			})
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.Engine.Start(r.Context(), in)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	poll := "/api/v1/analyses/" + run.ID
	w.Header().Set("Location", poll)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"analysis_id":          run.ID,
		"status":               run.Status,
		"estimated_completion": run.EstimatedCompletion,
		"poll":                 poll,
	})
}

// ListAnalyses lists runs, newest first. Query parameters: status, limit,
// offset and since (RFC 3339).
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{Status: models.AnalysisStatus(q.Get("status"))}
	if filter.Status != "" && !knownStatus(filter.Status) {
		respondError(w, http.StatusBadRequest, "Unknown status: "+q.Get("status"))
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid since: expected RFC 3339")
			return
		}
		filter.Since = &since
	}

	runs, err := h.Store.ListRuns(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]analysisSummary, 0, len(runs))
	for i := range runs {
		out = append(out, summarize(&runs[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"analyses": out,
		"count":    len(out),
	})
}

// GetAnalysis returns the status of one run.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, summarize(run))
}

// GetReport returns the full report of a completed run. Failed runs answer
// with their failure payload; unfinished runs with 409.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok || !h.requireFinished(w, run) {
		return
	}
	if !run.Success {
		respondJSON(w, http.StatusUnprocessableEntity, run.Failure())
		return
	}
	respondJSON(w, http.StatusOK, reportResponse{
		Success:            true,
		AnalysisID:         run.ID,
		Report:             run.Report,
		Quality:            run.Quality,
		QualityScore:       run.QualityScore,
		QualityIterations:  run.QualityIterations,
		Stats:              run.Stats,
		ServicesUsed:       run.ServicesUsed,
		BackupServicesUsed: run.BackupServicesUsed,
		ExecutionTime:      run.ExecutionTimeSeconds,
		Warnings:           run.Warnings,
		NextSteps:          run.NextSteps,
		CompletedAt:        run.CompletedAt,
	})
}

// GetReportMarkdown renders a finished run as Markdown.
func (h *Handlers) GetReportMarkdown(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok || !h.requireFinished(w, run) {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="analise-%s.md"`, run.ID))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(render.Markdown(run)))
}

// GetReportPDF renders a completed run as a PDF download.
func (h *Handlers) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok || !h.requireFinished(w, run) {
		return
	}
	if !run.Success {
		respondJSON(w, http.StatusUnprocessableEntity, run.Failure())
		return
	}
	doc, err := render.PDF(run)
	if err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("PDF rendering failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analise-%s.pdf"`, run.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// CancelAnalysis stops a running analysis.
func (h *Handlers) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Engine.Cancel(id) {
		respondJSON(w, http.StatusAccepted, map[string]string{
			"analysis_id": id,
			"status":      "canceling",
		})
		return
	}
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusConflict, map[string]any{
		"error":  "Analysis is not running",
		"status": run.Status,
	})
}

func (h *Handlers) loadRun(w http.ResponseWriter, r *http.Request) (*models.AnalysisRun, bool) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return run, true
}

func (h *Handlers) requireFinished(w http.ResponseWriter, run *models.AnalysisRun) bool {
	if run.Status.Terminal() {
		return true
	}
	respondJSON(w, http.StatusConflict, map[string]any{
		"error":        "Analysis still in progress",
		"status":       run.Status,
		"progress":     run.Progress,
		"current_step": run.CurrentStep,
	})
	return false
}

// ── Response shapes ─────────────────────────────────────────

type analysisSummary struct {
	AnalysisID          string                `json:"analysis_id"`
	Product             string                `json:"product"`
	Status              models.AnalysisStatus `json:"status"`
	Progress            int                   `json:"progress"`
	CurrentStep         string                `json:"current_step,omitempty"`
	QualityScore        float64               `json:"quality_score,omitempty"`
	ErrorMessage        string                `json:"error_message,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	EstimatedCompletion *time.Time            `json:"estimated_completion,omitempty"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
}

func summarize(run *models.AnalysisRun) analysisSummary {
	return analysisSummary{
		AnalysisID:          run.ID,
		Product:             run.Input.Product.Name,
		Status:              run.Status,
		Progress:            run.Progress,
		CurrentStep:         run.CurrentStep,
		QualityScore:        run.QualityScore,
		ErrorMessage:        run.ErrorMessage,
		CreatedAt:           run.CreatedAt,
		EstimatedCompletion: run.EstimatedCompletion,
		CompletedAt:         run.CompletedAt,
	}
}

type reportResponse struct {
	Success            bool                  `json:"success"`
	AnalysisID         string                `json:"analysis_id"`
	Report             models.Report         `json:"report"`
	Quality            *models.QualityReport `json:"quality_report,omitempty"`
	QualityScore       float64               `json:"quality_score"`
	QualityIterations  int                   `json:"quality_iterations"`
	Stats              models.ReportStats    `json:"report_stats"`
	ServicesUsed       []string              `json:"services_used"`
	BackupServicesUsed []string              `json:"backup_services_used"`
	ExecutionTime      float64               `json:"execution_time"`
	Warnings           []string              `json:"warnings"`
	NextSteps          []string              `json:"next_steps,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
}

// ── Helpers ─────────────────────────────────────────────────

func normalizeInput(in *models.AnalysisInput) {
	in.Product.Name = strings.TrimSpace(in.Product.Name)
	in.Product.Description = strings.TrimSpace(in.Product.Description)
	in.Product.Category = strings.TrimSpace(in.Product.Category)
	in.Product.Price = strings.TrimSpace(in.Product.Price)
	in.TargetMarket.Demographic = strings.TrimSpace(in.TargetMarket.Demographic)
	in.TargetMarket.Location = strings.TrimSpace(in.TargetMarket.Location)
	in.TargetMarket.Income = strings.TrimSpace(in.TargetMarket.Income)

	keywords := in.CompetitionKeywords[:0]
	for _, k := range in.CompetitionKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	in.CompetitionKeywords = keywords
}

func validationDetails(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		// drop the root type name: "AnalysisInput.product.name" → "product.name"
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			out = append(out, field+" is required")
		case "max":
			out = append(out, fmt.Sprintf("%s exceeds the maximum of %s", field, fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return out
}

func knownStatus(s models.AnalysisStatus) bool {
	switch s {
	case models.AnalysisPending, models.AnalysisProcessing, models.AnalysisCompleted,
		models.AnalysisFailed, models.AnalysisCanceled:
		return true
	}
	return false
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
