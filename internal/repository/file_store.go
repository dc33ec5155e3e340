package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

type fallbackFile struct {
	Documents   map[string]entity.StoredDocument `json:"documents"`
	LastUpdated time.Time                        `json:"last_updated"`
}

// FileStore keeps every document in one JSON file. The whole file is
// rewritten (temp file + rename) on each mutation, under a single writer lock.
type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	docs map[string]entity.StoredDocument
}

// OpenFileStore loads path, creating parent directories as needed. A file that
// fails to parse or validate is moved aside and the store starts empty.
func OpenFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("fallback store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create fallback store dir: %w", err)
	}
	s := &FileStore{
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		docs:   map[string]entity.StoredDocument{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	logger.Info("store.fallback.opened", "path", path, "documents", len(s.docs))
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read fallback store: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var f fallbackFile
	verr := validateFallbackFile(raw)
	if verr == nil {
		verr = json.Unmarshal(raw, &f)
	}
	if verr != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		s.logger.Error("store.fallback.corrupt", "path", s.path, "moved_to", aside, "error", verr)
		if err := os.Rename(s.path, aside); err != nil {
			return fmt.Errorf("move corrupt fallback store: %w", err)
		}
		return nil
	}
	for id, d := range f.Documents {
		d.ID = id
		s.docs[id] = d
	}
	return nil
}

// persist must be called with mu held for writing.
func (s *FileStore) persist() error {
	b, err := json.MarshalIndent(fallbackFile{Documents: s.docs, LastUpdated: s.now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fallback store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace fallback store: %w", err)
	}
	return nil
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Path() string { return s.path }

// Connected is always true for the local file.
func (s *FileStore) Connected(context.Context) bool { return true }

// newID returns doc_{unix}_{4 digits}; must be called with mu held.
func (s *FileStore) newID() string {
	for {
		id := fmt.Sprintf("doc_%d_%d", s.now().Unix(), 1000+rand.IntN(9000))
		if _, taken := s.docs[id]; !taken {
			return id
		}
	}
}

func (s *FileStore) Save(_ context.Context, doc *entity.StoredDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *doc
	d.ID = s.newID()
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	s.docs[d.ID] = d
	if err := s.persist(); err != nil {
		delete(s.docs, d.ID)
		s.logger.Error("store.fallback.save_failed", "path", s.path, "error", err)
		return "", err
	}
	doc.ID, doc.CreatedAt, doc.UpdatedAt = d.ID, d.CreatedAt, d.UpdatedAt
	s.logger.Debug("store.fallback.saved", "document_id", d.ID, "patient_id", d.PatientID)
	return d.ID, nil
}

func (s *FileStore) GetByID(_ context.Context, id string, includePayload bool) (*entity.StoredDocument, error) {
	s.mu.RLock()
	d, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !includePayload {
		d = d.WithoutPayload()
	}
	return &d, nil
}

func (s *FileStore) ListByPatient(_ context.Context, patientID string, limit int) ([]entity.StoredDocument, error) {
	limit = normalizeLimit(limit)
	s.mu.RLock()
	out := make([]entity.StoredDocument, 0)
	for _, d := range s.docs {
		if d.PatientID == patientID {
			out = append(out, d.WithoutPayload())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) UpdateOCRResults(_ context.Context, id string, patch entity.DocumentPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	d := prev
	text, count, pt := patch.ExtractedText, patch.TextCount, patch.ProcessingTime
	d.ExtractedText = &text
	d.OCRResults = patch.OCRResults
	d.TextCount = &count
	d.ProcessingTime = &pt
	d.UpdatedAt = s.now()
	s.docs[id] = d
	if err := s.persist(); err != nil {
		s.docs[id] = prev
		return false, err
	}
	return true, nil
}

func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	delete(s.docs, id)
	if err := s.persist(); err != nil {
		s.docs[id] = prev
		return false, err
	}
	return true, nil
}

func (s *FileStore) Close() error { return nil }
