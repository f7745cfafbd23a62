// Package store persists analysis runs. The server depends only on the
// AnalysisStore interface; MemoryStore is the built-in implementation.
package store

import (
	"context"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
)

// AnalysisStore keeps analysis runs by id. Implementations return copies:
// mutating a returned run never changes stored state.
type AnalysisStore interface {
	CreateRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, filter ListFilter) ([]models.AnalysisRun, error)
	DeleteRun(ctx context.Context, id string) error

	// Ping checks the store is usable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict is returned when creating an entity whose key is taken.
type ErrConflict struct {
	Entity string
	Key    string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " already exists: " + e.Key
}

// ── Recovery ────────────────────────────────────────────────

const interruptedMessage = "Falha na execução: análise interrompida pela reinicialização do servidor"

// markInterrupted fails a run that was still in progress when the previous
// process stopped. Runs cannot resume across restarts.
func markInterrupted(r *models.AnalysisRun, now time.Time) {
	r.Status = models.AnalysisFailed
	r.Success = false
	r.ErrorMessage = interruptedMessage
	r.Errors = append(r.Errors, interruptedMessage)
	r.CompletedAt = &now
}

// ── Filter helpers ──────────────────────────────────────────

// ListFilter narrows ListRuns. Zero values mean no filtering; Limit
// defaults to 100.
type ListFilter struct {
	Status models.AnalysisStatus
	Limit  int
	Offset int
	Since  *time.Time
}
