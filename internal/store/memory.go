package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Runs map[string]*models.AnalysisRun `json:"runs"`
}

// MemoryStore implements AnalysisStore with an in-memory map.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.AnalysisRun // key: run id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
	debounce     time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithDebounce sets how long snapshot writes are coalesced.
func WithDebounce(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.debounce = d }
}

// NewMemoryStore creates a store. When dataDir is not empty runs are
// persisted to dataDir/analyses.json and reloaded on start.
func NewMemoryStore(dataDir string, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		runs:     make(map[string]*models.AnalysisRun),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "analyses.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-time.After(m.debounce):
			case <-m.doneCh:
				return
			}
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Runs: m.runs}, "", "  ")
	n := len(m.runs)
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
	log.Debug().Str("path", m.snapshotPath).Int("runs", n).Msg("Snapshot saved")
}

// loadSnapshot reads runs from disk on startup. Runs that were still in
// progress when the previous process stopped cannot resume and are marked
// failed.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	interrupted := 0
	now := time.Now()
	for id, r := range snap.Runs {
		if r == nil {
			continue
		}
		if !r.Status.Terminal() {
			markInterrupted(r, now)
			interrupted++
		}
		m.runs[id] = r
	}

	log.Info().
		Int("runs", len(m.runs)).
		Int("interrupted", interrupted).
		Str("path", m.snapshotPath).
		Msg("📂 Loaded analyses from snapshot")
	if interrupted > 0 {
		m.requestSave()
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}
	log.Info().Msg("Memory store closed")
	return nil
}

// ── Analysis Store ──────────────────────────────────────────

func (m *MemoryStore) CreateRun(_ context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	if _, exists := m.runs[run.ID]; exists {
		m.mu.Unlock()
		return &ErrConflict{Entity: "analysis", Key: run.ID}
	}
	m.runs[run.ID] = run.Clone()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	if _, exists := m.runs[run.ID]; !exists {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "analysis", Key: run.ID}
	}
	m.runs[run.ID] = run.Clone()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*models.AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "analysis", Key: id}
	}
	return r.Clone(), nil
}

// ListRuns returns runs newest first.
func (m *MemoryStore) ListRuns(_ context.Context, filter ListFilter) ([]models.AnalysisRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	matched := make([]*models.AnalysisRun, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := []models.AnalysisRun{}
	for i := offset; i < len(matched) && len(result) < limit; i++ {
		result = append(result, *matched[i].Clone())
	}
	m.mu.RUnlock()
	return result, nil
}

func (m *MemoryStore) DeleteRun(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.runs[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "analysis", Key: id}
	}
	delete(m.runs, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}
