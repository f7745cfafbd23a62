package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

// LocalFileArchiver writes expired runs as JSONL files to a local directory,
// one run per line:
//
//	{basePath}/analyses/2026-02-20T15-04-05Z-0001.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
	seq      atomic.Uint64
}

// NewLocalFileArchiver creates a file-based archiver rooted at basePath.
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveRuns(_ context.Context, runs []models.AnalysisRun) (string, error) {
	dir := filepath.Join(a.basePath, "analyses")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := fmt.Sprintf("%s-%04d.jsonl", time.Now().UTC().Format("2006-01-02T15-04-05Z"), a.seq.Add(1))
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	if err := encodeRuns(f, runs, a.compress); err != nil {
		f.Close()
		os.Remove(fpath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(fpath)
		return "", fmt.Errorf("close archive file: %w", err)
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(runs)).
		Msg("Archived analyses to local file")
	return fpath, nil
}

// encodeRuns writes runs as JSON lines, gzipped when compress is set.
func encodeRuns(w io.Writer, runs []models.AnalysisRun, compress bool) error {
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(w)
		w = gw
	}
	enc := json.NewEncoder(w)
	for i := range runs {
		if err := enc.Encode(&runs[i]); err != nil {
			return fmt.Errorf("encode analysis %s: %w", runs[i].ID, err)
		}
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			return fmt.Errorf("flush archive: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the archive directory is writable.
func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	probe := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(probe)
	return nil
}
