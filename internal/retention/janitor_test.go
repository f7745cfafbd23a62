package retention_test

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/retention"
	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	finished := func(id string, status models.AnalysisStatus, age time.Duration) *models.AnalysisRun {
		done := now.Add(-age)
		return &models.AnalysisRun{ID: id, Status: status, CreatedAt: done.Add(-time.Minute), CompletedAt: &done}
	}
	require.NoError(t, s.CreateRun(ctx, finished("old-completed", models.AnalysisCompleted, 72*time.Hour)))
	require.NoError(t, s.CreateRun(ctx, finished("old-failed", models.AnalysisFailed, 50*time.Hour)))
	require.NoError(t, s.CreateRun(ctx, finished("old-canceled", models.AnalysisCanceled, 49*time.Hour)))
	require.NoError(t, s.CreateRun(ctx, finished("recent", models.AnalysisCompleted, time.Hour)))
	require.NoError(t, s.CreateRun(ctx, &models.AnalysisRun{ID: "stuck", Status: models.AnalysisProcessing, CreatedAt: now.Add(-100 * time.Hour)}))
	return s
}

func remaining(t *testing.T, s store.AnalysisStore) []string {
	t.Helper()
	runs, err := s.ListRuns(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestRunCycle_PurgesExpired(t *testing.T) {
	s := seed(t)
	j := retention.NewJanitor(s, 48*time.Hour, time.Hour)

	stats := j.RunCycle(context.Background(), now)

	assert.Equal(t, 3, stats.Expired)
	assert.Equal(t, 3, stats.Purged)
	assert.Zero(t, stats.Archived)
	assert.Empty(t, stats.Errors)
	assert.ElementsMatch(t, []string{"recent", "stuck"}, remaining(t, s))
}

func TestRunCycle_ArchivesBeforePurging(t *testing.T) {
	s := seed(t)
	dir := t.TempDir()
	j := retention.NewJanitor(s, 48*time.Hour, time.Hour,
		retention.WithArchiver(retention.NewLocalFileArchiver(dir, true)),
		retention.WithBatchSize(2),
	)

	stats := j.RunCycle(context.Background(), now)
	require.Empty(t, stats.Errors)
	assert.Equal(t, 3, stats.Archived)
	assert.Equal(t, 3, stats.Purged)
	require.Len(t, stats.URIs, 2, "two batches")

	var ids []string
	for _, uri := range stats.URIs {
		assert.Contains(t, uri, ".jsonl.gz")
		f, err := os.Open(uri)
		require.NoError(t, err)
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		sc := bufio.NewScanner(gz)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			var run models.AnalysisRun
			require.NoError(t, json.Unmarshal(sc.Bytes(), &run))
			ids = append(ids, run.ID)
		}
		require.NoError(t, sc.Err())
		f.Close()
	}
	assert.Equal(t, []string{"old-completed", "old-failed", "old-canceled"}, ids, "oldest first")
}

type failingArchiver struct{}

func (failingArchiver) Kind() string { return "broken" }

func (failingArchiver) ArchiveRuns(context.Context, []models.AnalysisRun) (string, error) {
	return "", errors.New("disk full")
}

func TestRunCycle_ArchiveFailureKeepsRuns(t *testing.T) {
	s := seed(t)
	j := retention.NewJanitor(s, 48*time.Hour, time.Hour, retention.WithArchiver(failingArchiver{}))

	stats := j.RunCycle(context.Background(), now)

	assert.Equal(t, 3, stats.Expired)
	assert.Zero(t, stats.Purged)
	require.Len(t, stats.Errors, 1)
	assert.Len(t, remaining(t, s), 5, "nothing deleted when archiving fails")
}

func TestStart_DisabledWithoutTTL(t *testing.T) {
	s := seed(t)
	done := make(chan struct{})
	go func() {
		retention.NewJanitor(s, 0, time.Hour).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately without a TTL")
	}
	assert.Len(t, remaining(t, s), 5)
}

func TestLocalFileArchiver_HealthCheck(t *testing.T) {
	a := retention.NewLocalFileArchiver(t.TempDir(), false)
	assert.NoError(t, a.HealthCheck(context.Background()))
	assert.Equal(t, "local", a.Kind())
}
