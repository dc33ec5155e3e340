package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/repository"
)

func (p *Pipeline) primaryUp(ctx context.Context) bool {
	return p.primary != nil && p.primary.Connected(ctx)
}

func (p *Pipeline) storeFor(st constants.StorageType) repository.DocumentStore {
	if st == constants.StoragePrimary && p.primary != nil {
		return p.primary
	}
	return p.fallback
}

// save writes to the primary store when it is connected, otherwise (or when
// the primary write fails) to the fallback.
func (p *Pipeline) save(ctx context.Context, doc *entity.StoredDocument) (string, constants.StorageType, error) {
	logger := common.LoggerFrom(ctx, p.logger)
	var primaryErr error
	if p.primaryUp(ctx) {
		id, err := p.primary.Save(ctx, doc)
		if err == nil {
			return id, constants.StoragePrimary, nil
		}
		primaryErr = err
		logger.Warn("store.primary.save_failed", "store", p.primary.Name(), "error", err)
	} else if p.primary != nil {
		logger.Warn("store.primary.unavailable", "store", p.primary.Name())
	}

	id, err := p.fallback.Save(ctx, doc)
	if err != nil {
		return "", "", common.NewAppError(common.CodeStoreWrite, "document could not be stored",
			errors.Join(common.ErrStoreWrite, primaryErr, err))
	}
	logger.Info("store.fallback.saved", "document_id", id)
	return id, constants.StorageFallback, nil
}

// GetByID reads from the primary store first and then from the fallback.
func (p *Pipeline) GetByID(ctx context.Context, id string, includePayload bool) (*entity.StoredDocument, constants.StorageType, error) {
	if p.primaryUp(ctx) {
		doc, err := p.primary.GetByID(ctx, id, includePayload)
		switch {
		case err == nil:
			return doc, constants.StoragePrimary, nil
		case !errors.Is(err, repository.ErrNotFound):
			p.logger.Warn("store.primary.get_failed", "document_id", id, "error", err)
		}
	}
	doc, err := p.fallback.GetByID(ctx, id, includePayload)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", common.NotFoundf("document %s", id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, constants.StorageFallback, nil
}

// ListByPatient lists from the primary store when it is connected and from
// the fallback otherwise.
func (p *Pipeline) ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, constants.StorageType, error) {
	patientID, err := common.NormalizePatientID(patientID)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if p.primaryUp(ctx) {
		docs, err := p.primary.ListByPatient(ctx, patientID, limit)
		if err == nil {
			return docs, constants.StoragePrimary, nil
		}
		p.logger.Warn("store.primary.list_failed", "patient_id", patientID, "error", err)
	}
	docs, err := p.fallback.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	return docs, constants.StorageFallback, nil
}

// UpdateOCRResults applies patch to whichever store holds id.
func (p *Pipeline) UpdateOCRResults(ctx context.Context, id string, patch entity.DocumentPatch) (bool, error) {
	if p.primaryUp(ctx) {
		ok, err := p.primary.UpdateOCRResults(ctx, id, patch)
		if err != nil {
			p.logger.Warn("store.primary.update_failed", "document_id", id, "error", err)
		}
		if ok {
			return true, nil
		}
	}
	return p.fallback.UpdateOCRResults(ctx, id, patch)
}

// Delete removes id from whichever store holds it.
func (p *Pipeline) Delete(ctx context.Context, id string) (bool, error) {
	if p.primaryUp(ctx) {
		ok, err := p.primary.Delete(ctx, id)
		if err != nil {
			p.logger.Warn("store.primary.delete_failed", "document_id", id, "error", err)
		}
		if ok {
			p.logger.Info("pipeline.delete.ok", "document_id", id, "storage", constants.StoragePrimary)
			return true, nil
		}
	}
	ok, err := p.fallback.Delete(ctx, id)
	if ok {
		p.logger.Info("pipeline.delete.ok", "document_id", id, "storage", constants.StorageFallback)
	}
	return ok, err
}
