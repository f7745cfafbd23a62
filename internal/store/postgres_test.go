package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database when PSYMARKET_TEST_DATABASE_URL is set.
func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	url := os.Getenv("PSYMARKET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PSYMARKET_TEST_DATABASE_URL not set")
	}
	s, err := store.NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	run := newRun(id, time.Now().UTC().Truncate(time.Millisecond))
	run.Report = models.Report{Sections: []models.Section{
		models.MapSection(models.SectionAvatar, "content", "perfil", "service", "Google Gemini"),
		models.TextSection(models.SectionMarketData, "dados"),
	}}
	require.NoError(t, s.CreateRun(ctx, run))
	t.Cleanup(func() { s.DeleteRun(ctx, id) })

	var conflict *store.ErrConflict
	assert.True(t, errors.As(s.CreateRun(ctx, run), &conflict))

	run.Status = models.AnalysisCompleted
	run.QualityScore = 90
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	assert.Equal(t, []string{models.SectionAvatar, models.SectionMarketData}, got.Report.Names())

	list, err := s.ListRuns(ctx, store.ListFilter{Status: models.AnalysisCompleted, Since: &run.CreatedAt})
	require.NoError(t, err)
	var ids []string
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, id)

	require.NoError(t, s.DeleteRun(ctx, id))
	_, err = s.GetRun(ctx, id)
	var notFound *store.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
	assert.True(t, errors.As(s.UpdateRun(ctx, run), &notFound))
	assert.NoError(t, s.Ping(ctx))
}
