package repository

import (
	"context"

	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// ErrNotFound is returned by GetByID for unknown ids.
var ErrNotFound = common.ErrNotFound

// DocumentStore is the contract shared by the primary and fallback stores.
type DocumentStore interface {
	// Name identifies the backend in logs ("postgres", "sqlite", "firestore", "file").
	Name() string
	// Connected reports whether writes are expected to succeed right now.
	Connected(ctx context.Context) bool
	// Save assigns a new id, sets timestamps, and sets doc.ID.
	Save(ctx context.Context, doc *entity.StoredDocument) (string, error)
	// GetByID omits base64_data and ocr_results unless includePayload is set.
	GetByID(ctx context.Context, id string, includePayload bool) (*entity.StoredDocument, error)
	// ListByPatient returns at most limit documents, newest first, without payload.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, error)
	// UpdateOCRResults returns true whenever the document exists.
	UpdateOCRResults(ctx context.Context, id string, patch entity.DocumentPatch) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
