// Package retention removes finished analyses once they outlive the
// configured TTL.
//
// Expired runs are optionally archived before they are purged. Archive
// failures are fail-safe: a batch that could not be archived stays in the
// store and is retried on the next cycle. Runs still in progress are never
// touched.
package retention

import (
	"context"
	"sort"
	"time"

	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultArchiveBatchSize is the max runs per archive write.
const DefaultArchiveBatchSize = 500

// listPageSize is how many runs are read per ListRuns call.
const listPageSize = 500

// Archiver writes expired runs to durable storage.
type Archiver interface {
	Kind() string
	// ArchiveRuns stores runs and returns where they were written.
	ArchiveRuns(ctx context.Context, runs []models.AnalysisRun) (string, error)
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Expired  int
	Archived int
	Purged   int
	URIs     []string
	Errors   []error
}

// Janitor periodically purges expired runs from a store.
type Janitor struct {
	store     store.AnalysisStore
	ttl       time.Duration
	interval  time.Duration
	archiver  Archiver
	batchSize int
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithArchiver archives expired runs before purging them.
func WithArchiver(a Archiver) Option {
	return func(j *Janitor) { j.archiver = a }
}

// WithBatchSize sets how many runs go into one archive write.
func WithBatchSize(n int) Option {
	return func(j *Janitor) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// NewJanitor creates a janitor purging runs finished more than ttl ago,
// sweeping every interval.
func NewJanitor(s store.AnalysisStore, ttl, interval time.Duration, opts ...Option) *Janitor {
	if interval < time.Second {
		interval = time.Hour
	}
	j := &Janitor{
		store:     s,
		ttl:       ttl,
		interval:  interval,
		batchSize: DefaultArchiveBatchSize,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start runs the janitor until ctx is canceled. A zero TTL disables it.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 {
		log.Info().Msg("🔕 Run retention disabled")
		return
	}
	archiver := "none"
	if j.archiver != nil {
		archiver = j.archiver.Kind()
	}
	log.Info().
		Dur("ttl", j.ttl).
		Dur("interval", j.interval).
		Str("archiver", archiver).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx, time.Now())
		}
	}
}

// RunCycle performs one retention sweep as of now.
func (j *Janitor) RunCycle(ctx context.Context, now time.Time) CycleStats {
	start := time.Now()
	var stats CycleStats

	expired, err := j.findExpired(ctx, now.Add(-j.ttl))
	if err != nil {
		log.Warn().Err(err).Msg("Retention janitor: failed to list analyses")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	stats.Expired = len(expired)
	if len(expired) == 0 {
		return stats
	}

	if j.archiver == nil {
		j.purge(ctx, expired, &stats)
	} else {
		for i := 0; i < len(expired); i += j.batchSize {
			end := min(i+j.batchSize, len(expired))
			batch := expired[i:end]

			uri, err := j.archiver.ArchiveRuns(ctx, batch)
			if err != nil {
				log.Warn().Err(err).
					Str("archiver", j.archiver.Kind()).
					Int("batch_size", len(batch)).
					Msg("Archive failed, skipping purge")
				stats.Errors = append(stats.Errors, err)
				continue
			}
			stats.Archived += len(batch)
			stats.URIs = append(stats.URIs, uri)
			j.purge(ctx, batch, &stats)
		}
	}

	for _, e := range stats.Errors {
		log.Warn().Err(e).Msg("Retention cycle error")
	}
	log.Info().
		Int("expired", stats.Expired).
		Int("archived", stats.Archived).
		Int("purged", stats.Purged).
		Dur("elapsed", time.Since(start)).
		Msg("Retention cycle complete")
	return stats
}

// findExpired returns finished runs completed before cutoff, oldest first.
func (j *Janitor) findExpired(ctx context.Context, cutoff time.Time) ([]models.AnalysisRun, error) {
	var expired []models.AnalysisRun
	for _, status := range []models.AnalysisStatus{models.AnalysisCompleted, models.AnalysisFailed, models.AnalysisCanceled} {
		for offset := 0; ; offset += listPageSize {
			page, err := j.store.ListRuns(ctx, store.ListFilter{Status: status, Limit: listPageSize, Offset: offset})
			if err != nil {
				return nil, err
			}
			for _, r := range page {
				if r.CompletedAt != nil && r.CompletedAt.Before(cutoff) {
					expired = append(expired, r)
				}
			}
			if len(page) < listPageSize {
				break
			}
		}
	}
	sort.Slice(expired, func(a, b int) bool {
		return expired[a].CompletedAt.Before(*expired[b].CompletedAt)
	})
	return expired, nil
}

func (j *Janitor) purge(ctx context.Context, runs []models.AnalysisRun, stats *CycleStats) {
	for _, r := range runs {
		if err := j.store.DeleteRun(ctx, r.ID); err != nil {
			if _, ok := err.(*store.ErrNotFound); ok {
				continue
			}
			log.Warn().Err(err).Str("run_id", r.ID).Msg("Failed to delete expired analysis")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Purged++
	}
}
