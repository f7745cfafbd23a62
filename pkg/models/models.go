package models

import (
	"time"
)

// ── Service Classes ─────────────────────────────────────────

// ServiceClass selects which provider table entry handles a task.
type ServiceClass string

const (
	ServiceChat     ServiceClass = "chat"
	ServiceAnalysis ServiceClass = "analysis"
	ServiceSearch   ServiceClass = "search"
)

// ServiceClasses lists every known class in a stable order.
var ServiceClasses = []ServiceClass{ServiceChat, ServiceAnalysis, ServiceSearch}

// Valid reports whether c is one of the known service classes.
func (c ServiceClass) Valid() bool {
	switch c {
	case ServiceChat, ServiceAnalysis, ServiceSearch:
		return true
	}
	return false
}

// ── Providers ───────────────────────────────────────────────

// ProviderRole marks a descriptor as the primary or a backup for its class.
type ProviderRole string

const (
	RolePrimary ProviderRole = "primary"
	RoleBackup  ProviderRole = "backup"
)

// ProviderDescriptor is the static configuration of one upstream provider.
// Kind selects the driver that performs the call.
type ProviderDescriptor struct {
	Name                string       `json:"name" yaml:"name"`
	Class               ServiceClass `json:"class" yaml:"class"`
	Kind                string       `json:"kind" yaml:"kind"`
	Model               string       `json:"model,omitempty" yaml:"model,omitempty"`
	Endpoint            string       `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	RequiredCredentials []string     `json:"required_credentials,omitempty" yaml:"required_credentials,omitempty"`
	OptionalCredentials []string     `json:"optional_credentials,omitempty" yaml:"optional_credentials,omitempty"`
	IsFree              bool         `json:"is_free" yaml:"is_free"`
	Role                ProviderRole `json:"role" yaml:"role"`
	Rank                int          `json:"rank" yaml:"rank"`
}

// ── Invocation ──────────────────────────────────────────────

// InvocationOptions are the recognised knobs of a single provider call.
// Zero values mean "use the driver default". Temperature is a pointer
// because 0.0 is a valid setting.
type InvocationOptions struct {
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	NumResults  int      `json:"num_results,omitempty"`
}

// WithTemperature returns a copy of o with the temperature set to t.
func (o InvocationOptions) WithTemperature(t float64) InvocationOptions {
	o.Temperature = &t
	return o
}

// InvocationRequest is the input to one provider call.
type InvocationRequest struct {
	Class   ServiceClass      `json:"class"`
	Prompt  string            `json:"prompt"`
	Options InvocationOptions `json:"options"`
}

// SearchHit is one normalised web search result.
type SearchHit struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	Source         string  `json:"source,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// InvocationResult is the provider-independent shape every driver returns.
type InvocationResult struct {
	Content    string      `json:"content"`
	Provider   string      `json:"provider"`
	Model      string      `json:"model,omitempty"`
	TokensUsed int64       `json:"tokens_used"`
	Results    []SearchHit `json:"results,omitempty"`
}

// ── Validation ──────────────────────────────────────────────

// ValidationVerdict is the outcome of a whole-report quality check.
type ValidationVerdict struct {
	Passed      bool           `json:"passed"`
	Score       float64        `json:"score"`
	Reasons     []string       `json:"reasons"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Metrics     ReportMetrics  `json:"metrics"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
}

// ScoreBreakdown records the points earned by each scoring category.
type ScoreBreakdown struct {
	Length     float64 `json:"length"`
	Content    float64 `json:"content"`
	Structure  float64 `json:"structure"`
	Components float64 `json:"components"`
	Depth      float64 `json:"depth"`
}

// ReportMetrics are the raw measurements taken while scoring a report.
type ReportMetrics struct {
	TotalCharacters int            `json:"total_characters"`
	TotalWords      int            `json:"total_words"`
	SectionLengths  map[string]int `json:"section_lengths,omitempty"`
}

// QualityReport is the human-facing summary of a verdict.
type QualityReport struct {
	GeneratedAt            time.Time     `json:"generated_at"`
	OverallScore           float64       `json:"overall_score"`
	Approved               bool          `json:"is_approved"`
	Grade                  string        `json:"quality_grade"`
	IssuesFound            int           `json:"issues_found"`
	CriticalIssues         []string      `json:"critical_issues"`
	ImprovementSuggestions []string      `json:"improvement_suggestions"`
	Metrics                ReportMetrics `json:"metrics"`
	NextSteps              []string      `json:"next_steps"`
}

// ── System Status ───────────────────────────────────────────

// HealthLevel summarises provider availability across all classes.
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthDegraded HealthLevel = "degraded"
	HealthCritical HealthLevel = "critical"
)

// ProviderStatus reports whether a provider can currently be attempted.
type ProviderStatus struct {
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	Role       ProviderRole `json:"role"`
	IsFree     bool         `json:"is_free"`
	Configured bool         `json:"configured"`
	Missing    []string     `json:"missing_credentials,omitempty"`
}

// ClassStatus is the availability of one service class.
type ClassStatus struct {
	Class     ServiceClass     `json:"class"`
	Primary   ProviderStatus   `json:"primary"`
	Backups   []ProviderStatus `json:"backups"`
	Available int              `json:"available"`
}

// SystemStatus is returned by the status endpoint.
type SystemStatus struct {
	OverallHealth HealthLevel   `json:"overall_health"`
	Classes       []ClassStatus `json:"classes"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// ProbeResult is the outcome of a live test call against one service class.
type ProbeResult struct {
	Class     ServiceClass `json:"class"`
	Success   bool         `json:"success"`
	Provider  string       `json:"provider,omitempty"`
	LatencyMs int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}
