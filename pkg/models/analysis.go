package models

import "time"

// ProductInfo describes the product being analysed.
type ProductInfo struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	Category    string `json:"category,omitempty" validate:"max=200"`
	Price       string `json:"price,omitempty" validate:"max=100"`
}

// TargetMarket describes who the product is sold to.
type TargetMarket struct {
	Demographic string `json:"demographic" validate:"max=500"`
	Location    string `json:"location,omitempty" validate:"max=200"`
	Income      string `json:"income,omitempty" validate:"max=200"`
}

// AnalysisInput is everything a caller supplies to start an analysis.
type AnalysisInput struct {
	Product             ProductInfo  `json:"product" validate:"required"`
	TargetMarket        TargetMarket `json:"target_market"`
	CompetitionKeywords []string     `json:"competition_keywords,omitempty" validate:"max=20,dive,max=200"`
}

// AnalysisStatus is the lifecycle state of an analysis run.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "error"
	AnalysisCanceled   AnalysisStatus = "canceled"
)

// Terminal reports whether no further progress will be recorded.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed || s == AnalysisCanceled
}

// ReportStats are size measurements of a finished report.
type ReportStats struct {
	TotalCharacters      int  `json:"total_characters"`
	TotalWords           int  `json:"total_words"`
	TotalSections        int  `json:"total_sections"`
	MeetsMinimumLength   bool `json:"meets_minimum_length"`
	EstimatedReadingTime int  `json:"estimated_reading_time"`
}

// AnalysisRun is the aggregate state of one pipeline invocation.
type AnalysisRun struct {
	ID                   string         `json:"id"`
	Status               AnalysisStatus `json:"status"`
	Progress             int            `json:"progress"`
	CurrentStep          string         `json:"current_step,omitempty"`
	Input                AnalysisInput  `json:"input"`
	Success              bool           `json:"success"`
	Report               Report         `json:"report"`
	QualityScore         float64        `json:"quality_score"`
	Quality              *QualityReport `json:"quality,omitempty"`
	QualityIterations    int            `json:"quality_iterations"`
	ExecutionTimeSeconds float64        `json:"execution_time"`
	ServicesUsed         []string       `json:"services_used"`
	BackupServicesUsed   []string       `json:"backup_services_used"`
	Stats                ReportStats    `json:"report_stats"`
	FailedPhase          string         `json:"failed_phase,omitempty"`
	Errors               []string       `json:"errors"`
	Warnings             []string       `json:"warnings"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	FallbackSuggestions  []string       `json:"fallback_suggestions,omitempty"`
	NextSteps            []string       `json:"next_steps,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	EstimatedCompletion  *time.Time     `json:"estimated_completion,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
}

// FailurePayload is the structured error returned for a failed run.
type FailurePayload struct {
	Success             bool     `json:"success"`
	Error               string   `json:"error"`
	Errors              []string `json:"errors"`
	FailedPhase         string   `json:"failed_phase,omitempty"`
	FallbackSuggestions []string `json:"fallback_suggestions,omitempty"`
}

// Failure builds the failure payload of a run.
func (r *AnalysisRun) Failure() FailurePayload {
	return FailurePayload{
		Success:             false,
		Error:               r.ErrorMessage,
		Errors:              r.Errors,
		FailedPhase:         r.FailedPhase,
		FallbackSuggestions: r.FallbackSuggestions,
	}
}

// ProgressEvent is emitted at the fixed checkpoints of a run.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a copy of r that shares no mutable state with it.
// Sections are immutable values, so copying the slice is enough.
func (r *AnalysisRun) Clone() *AnalysisRun {
	out := *r
	out.Input.CompetitionKeywords = cloneStrings(r.Input.CompetitionKeywords)
	out.Report.Sections = append([]Section(nil), r.Report.Sections...)
	out.ServicesUsed = cloneStrings(r.ServicesUsed)
	out.BackupServicesUsed = cloneStrings(r.BackupServicesUsed)
	out.Errors = cloneStrings(r.Errors)
	out.Warnings = cloneStrings(r.Warnings)
	out.FallbackSuggestions = cloneStrings(r.FallbackSuggestions)
	out.NextSteps = cloneStrings(r.NextSteps)
	if r.Quality != nil {
		q := *r.Quality
		out.Quality = &q
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.EstimatedCompletion != nil {
		t := *r.EstimatedCompletion
		out.EstimatedCompletion = &t
	}
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
