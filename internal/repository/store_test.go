package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDoc(patientID, filename string, created time.Time) *entity.StoredDocument {
	text := "Hemoglobin 13.5"
	count := 1
	conf := 0.9
	pt := 0.25
	return &entity.StoredDocument{
		PatientID:        patientID,
		DocumentType:     constants.DocumentTypeImage,
		Filename:         filename,
		FileType:         constants.IMAGE,
		FileSize:         4,
		Base64Data:       "AAECAw==",
		ExtractedText:    &text,
		OCRResults:       []entity.ExtractedRecord{{Text: text, Confidence: conf, Method: constants.MethodOCR, Locator: 1}},
		TextCount:        &count,
		ConfidenceScore:  &conf,
		ProcessingTime:   &pt,
		ProcessingMethod: constants.ProcessingTesseract,
		Metadata:         entity.DocumentMetadata{"is_image": true, "mime_type": "image/png"},
		CreatedAt:        created,
	}
}

// exerciseStore runs the behavior every DocumentStore must share.
func exerciseStore(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		d := sampleDoc("P1", name, base.Add(time.Duration(i)*time.Hour))
		id, err := s.Save(ctx, d)
		if err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		if id == "" || d.ID != id {
			t.Fatalf("Save should set doc.ID, got id=%q doc.ID=%q", id, d.ID)
		}
		if d.UpdatedAt.IsZero() {
			t.Error("Save should set UpdatedAt")
		}
		ids = append(ids, id)
	}
	if _, err := s.Save(ctx, sampleDoc("P2", "other.png", base)); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListByPatient(ctx, "P1", 2)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(list) != 2 || list[0].Filename != "c.png" || list[1].Filename != "b.png" {
		t.Fatalf("list should be newest first and limited: %+v", list)
	}
	for _, d := range list {
		if d.Base64Data != "" || d.OCRResults != nil {
			t.Error("listed documents must not carry the payload")
		}
	}
	if all, _ := s.ListByPatient(ctx, "P1", 0); len(all) != 3 {
		t.Errorf("default limit should return all 3, got %d", len(all))
	}
	if none, err := s.ListByPatient(ctx, "nobody", 10); err != nil || len(none) != 0 || none == nil {
		t.Errorf("unknown patient: %v %#v", err, none)
	}

	got, err := s.GetByID(ctx, ids[0], false)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Base64Data != "" || got.OCRResults != nil {
		t.Error("payload should be omitted")
	}
	if got.ExtractedText == nil || *got.ExtractedText != "Hemoglobin 13.5" {
		t.Errorf("extracted text = %v", got.ExtractedText)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, base)
	}
	if mt, _ := got.Metadata["mime_type"].(string); mt != "image/png" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	full, err := s.GetByID(ctx, ids[0], true)
	if err != nil {
		t.Fatal(err)
	}
	if full.Base64Data != "AAECAw==" || len(full.OCRResults) != 1 {
		t.Errorf("payload missing: %+v", full)
	}

	if _, err := s.GetByID(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}

	patch := entity.DocumentPatch{ExtractedText: "new text", TextCount: 2, ProcessingTime: 1.5}
	for i := 0; i < 2; i++ {
		ok, err := s.UpdateOCRResults(ctx, ids[1], patch)
		if err != nil || !ok {
			t.Fatalf("UpdateOCRResults #%d = %v, %v; want true", i+1, ok, err)
		}
	}
	if ok, _ := s.UpdateOCRResults(ctx, "missing", patch); ok {
		t.Error("update of a missing id should report false")
	}
	upd, _ := s.GetByID(ctx, ids[1], true)
	if *upd.ExtractedText != "new text" || *upd.TextCount != 2 || upd.OCRResults != nil {
		t.Errorf("patch not applied: %+v", upd)
	}

	if ok, err := s.Delete(ctx, ids[2]); err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, ids[2]); ok {
		t.Error("second delete should report false")
	}
}
