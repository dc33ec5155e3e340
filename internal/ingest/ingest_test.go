package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// recordingIngester stores nothing and remembers every request.
type recordingIngester struct {
	mu     sync.Mutex
	seen   []pipeline.IngestRequest
	failOn string
}

func (r *recordingIngester) Ingest(_ context.Context, req pipeline.IngestRequest) (*pipeline.IngestResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, req)
	if req.Filename == r.failOn {
		return nil, errors.New("boom")
	}
	return &pipeline.IngestResponse{
		ExtractionResult: entity.ExtractionResult{Success: true, TextCount: 1},
		DocumentID:       "doc-" + req.Filename,
		PatientID:        req.PatientID,
		StorageType:      constants.StorageFallback,
	}, nil
}

func (r *recordingIngester) filenames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seen))
	for _, s := range r.seen {
		out = append(out, s.Filename)
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "labs.txt"), "CBC normal")
	writeFile(t, filepath.Join(root, "scans", "xray.PNG"), "png")
	writeFile(t, filepath.Join(root, "scans", "notes.exe"), "nope")
	writeFile(t, filepath.Join(root, ".cache", "old.txt"), "hidden dir")
	writeFile(t, filepath.Join(root, ".draft.txt"), "hidden file")
	writeFile(t, filepath.Join(root, "bad.pdf"), "%PDF")

	ing := &recordingIngester{failOn: "bad.pdf"}
	w := NewWalker(ing, discardLogger(), WithConcurrency(3))
	results, stats, err := w.IngestDirectory(context.Background(), "P1", root, true)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := strings.Join(ing.filenames(), ","), "bad.pdf,labs.txt,xray.PNG"; got != want {
		t.Errorf("ingested %s, want %s", got, want)
	}
	if stats.Scanned != 4 || stats.Matched != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for _, r := range results {
		if !filepath.IsAbs(r.SourcePath) {
			t.Errorf("source path %q is not absolute", r.SourcePath)
		}
		if filepath.Base(r.SourcePath) == "bad.pdf" && r.Err != "boom" {
			t.Errorf("failed file error = %q", r.Err)
		}
	}
	for _, req := range ing.seen {
		if req.PatientID != "P1" {
			t.Errorf("patient id = %q", req.PatientID)
		}
		if req.Filename == "labs.txt" && req.MIMEType != "text/plain; charset=utf-8" && req.MIMEType != "text/plain" {
			t.Errorf("txt mime = %q", req.MIMEType)
		}
	}
}

func TestIngestDirectoryIncludesHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".cache", "old.txt"), "x")
	ing := &recordingIngester{}
	_, stats, err := NewWalker(ing, discardLogger()).IngestDirectory(context.Background(), "P1", root, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestIngestDirectoryRequiresRoot(t *testing.T) {
	if _, _, err := NewWalker(&recordingIngester{}, discardLogger()).IngestDirectory(context.Background(), "P1", " ", true); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestIngestPathLimits(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.txt")
	writeFile(t, big, strings.Repeat("a", 64))
	w := NewWalker(&recordingIngester{}, discardLogger(), WithMaxFileSize(16))

	if _, err := w.IngestPath(context.Background(), "P1", big); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v", err)
	}
	if _, err := w.IngestPath(context.Background(), "P1", filepath.Join(dir, "x.exe")); err == nil {
		t.Error("unsupported extension should fail before reading")
	}
}

func TestHelpers(t *testing.T) {
	for path, want := range map[string]bool{
		"/a/.env":   true,
		"/a/b.txt":  false,
		".":         false,
		"/a/.git/x": false,
	} {
		if got := IsHidden(path); got != want {
			t.Errorf("IsHidden(%q) = %v", path, got)
		}
	}
	if !AllowedExt(".JPG") || !AllowedExt("docx") || AllowedExt(".zip") || AllowedExt("") {
		t.Error("AllowedExt mismatch")
	}
	if m := mimeForPath("x.pdf"); m != "application/pdf" {
		t.Errorf("pdf mime = %q", m)
	}
	if m := mimeForPath("x.unknownext"); m != "" {
		t.Errorf("unknown mime = %q", m)
	}
}

func TestStartWatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.txt"), "x")
	writeFile(t, filepath.Join(root, ".hidden.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, SkipHidden: true}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	next := func() string {
		t.Helper()
		select {
		case p := <-paths:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher")
			return ""
		}
	}
	if got := filepath.Base(next()); got != "existing.txt" {
		t.Fatalf("initial scan emitted %q", got)
	}

	writeFile(t, filepath.Join(root, "ignored.exe"), "x")
	writeFile(t, filepath.Join(root, "new.jpg"), "x")
	if got := filepath.Base(next()); got != "new.jpg" {
		t.Errorf("watcher emitted %q", got)
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-paths:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after cancel")
		}
	}
}

func TestStartWatcherNoRoots(t *testing.T) {
	if _, _, err := StartWatcher(context.Background(), WatchConfig{}, discardLogger()); err == nil {
		t.Error("expected error")
	}
}
