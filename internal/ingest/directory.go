package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

// Walker feeds files from the local filesystem to the pipeline.
type Walker struct {
	ingester    Ingester
	logger      *slog.Logger
	concurrency int
	maxBytes    int64
}

type WalkerOption func(*Walker)

func WithConcurrency(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxBytes = n
		}
	}
}

func NewWalker(ingester Ingester, logger *slog.Logger, opts ...WalkerOption) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Walker{ingester: ingester, logger: logger, concurrency: 2, maxBytes: 50 << 20}
	for _, o := range opts {
		o(w)
	}
	return w
}

// IngestPath reads one file and ingests it for patientID.
func (w *Walker) IngestPath(ctx context.Context, patientID, path string) (Result, error) {
	out := Result{SourcePath: path}
	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	out.SourcePath = abs
	if !AllowedExt(filepath.Ext(abs)) {
		return out, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	if info.Size() > w.maxBytes {
		return out, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), w.maxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return out, err
	}

	resp, err := w.ingester.Ingest(ctx, pipeline.IngestRequest{
		Data:      data,
		MIMEType:  mimeForPath(abs),
		Filename:  filepath.Base(abs),
		PatientID: patientID,
	})
	if err != nil {
		return out, err
	}
	out.DocumentID = resp.DocumentID
	out.StorageType = string(resp.StorageType)
	out.Success = resp.Success
	out.TextCount = resp.TextCount
	if !resp.Success {
		out.Err = resp.Error
	}
	if resp.DocumentID == "" {
		return out, errors.New("document was not stored")
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and ingests
// every supported file. Per-file failures are recorded, not returned.
func (w *Walker) IngestDirectory(ctx context.Context, patientID, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var (
		mu      sync.Mutex
		results []Result
		stats   DirStats
	)
	record := func(r Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if r.Err == "" {
				r.Err = err.Error()
			}
			stats.Failed++
			w.logger.Warn("ingest.file.failed", "path", r.SourcePath, "error", r.Err)
		} else {
			stats.Succeeded++
		}
		results = append(results, r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			stats.Scanned++
			record(Result{SourcePath: path}, walkErr)
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		// Scanned and Matched are only touched by the walking goroutine.
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		g.Go(func() error {
			r, err := w.IngestPath(gctx, patientID, path)
			record(r, err)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	w.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
