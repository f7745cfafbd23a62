package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// PostgresStore implements AnalysisStore on PostgreSQL. Each run is kept
// as a JSONB document next to the columns ListRuns filters and sorts on.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL, creates the schema if needed and
// fails any run left in progress by a previous process.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	interrupted, err := s.recoverInterrupted(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres recover: %w", err)
	}

	log.Info().Int("interrupted", interrupted).Msg("✅ PostgreSQL run store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS psy_analysis_runs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			data         JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_psy_runs_created ON psy_analysis_runs (created_at DESC, id);
		CREATE INDEX IF NOT EXISTS idx_psy_runs_status ON psy_analysis_runs (status, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) recoverInterrupted(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM psy_analysis_runs WHERE status = ANY($1)`,
		[]string{string(models.AnalysisPending), string(models.AnalysisProcessing)})
	if err != nil {
		return 0, err
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for i := range runs {
		markInterrupted(&runs[i], now)
		if err := s.UpdateRun(ctx, &runs[i]); err != nil {
			return i, err
		}
	}
	return len(runs), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	log.Info().Msg("PostgreSQL run store closed")
	return nil
}

// ── Analysis Store ──────────────────────────────────────────

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal analysis %s: %w", run.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO psy_analysis_runs (id, status, created_at, completed_at, data)
		 VALUES ($1, $2, $3, $4, $5::jsonb)`,
		run.ID, string(run.Status), run.CreatedAt, run.CompletedAt, string(data))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &ErrConflict{Entity: "analysis", Key: run.ID}
	}
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.AnalysisRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal analysis %s: %w", run.ID, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE psy_analysis_runs
		 SET status = $2, completed_at = $3, data = $4::jsonb
		 WHERE id = $1`,
		run.ID, string(run.Status), run.CompletedAt, string(data))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "analysis", Key: run.ID}
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM psy_analysis_runs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "analysis", Key: id}
	}
	if err != nil {
		return nil, err
	}
	var run models.AnalysisRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter ListFilter) ([]models.AnalysisRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(filter.Offset, 0)

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT data FROM psy_analysis_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRuns(rows)
}

func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM psy_analysis_runs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "analysis", Key: id}
	}
	return nil
}

func collectRuns(rows pgx.Rows) ([]models.AnalysisRun, error) {
	defer rows.Close()
	runs := []models.AnalysisRun{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run models.AnalysisRun
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
