// Package firestore stores medical documents in a Cloud Firestore collection.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/repository"
)

const DefaultCollection = "medical_documents"

// maxDocumentBytes is Firestore's per-document limit.
const maxDocumentBytes = 1 << 20

// ErrDocumentTooLarge is returned by Save for documents Firestore would reject.
var ErrDocumentTooLarge = errors.New("document exceeds the firestore 1 MiB limit")

// record is the stored shape. Firestore rejects nested arrays, so the
// bounding boxes travel as a JSON string in OCRResults.
type record struct {
	PatientID        string         `firestore:"patient_id"`
	DocumentType     string         `firestore:"document_type"`
	Filename         string         `firestore:"filename"`
	FileType         string         `firestore:"file_type"`
	FileSize         int64          `firestore:"file_size"`
	Base64Data       string         `firestore:"base64_data"`
	ExtractedText    *string        `firestore:"extracted_text"`
	OCRResults       *string        `firestore:"ocr_results"`
	TextCount        *int64         `firestore:"text_count"`
	ConfidenceScore  *float64       `firestore:"confidence_score"`
	ProcessingTime   *float64       `firestore:"processing_time"`
	ProcessingMethod string         `firestore:"processing_method"`
	Metadata         map[string]any `firestore:"metadata"`
	CreatedAt        time.Time      `firestore:"created_at"`
	UpdatedAt        time.Time      `firestore:"updated_at"`
}

type Store struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// ParseURI splits firestore://project[/database] into its parts.
func ParseURI(uri string) (project, database string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "firestore://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("invalid firestore uri %q", uri)
	}
	project, database, _ = strings.Cut(rest, "/")
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	return project, database, nil
}

// Open creates a Firestore client for the project and database in uri.
func Open(ctx context.Context, uri, collection string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	project, database, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := firestore.NewClientWithDatabase(ctx, project, database)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	logger.Info("connected to firestore", "project", project, "database", database, "collection", collection)
	return &Store{
		client:     client,
		collection: collection,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Name() string { return "firestore" }

func (s *Store) docs() *firestore.CollectionRef { return s.client.Collection(s.collection) }

// Connected runs a one-document query as a liveness check.
func (s *Store) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	it := s.docs().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		s.logger.Warn("store.primary.ping_failed", "store", s.Name(), "error", err)
		return false
	}
	return true
}

func (s *Store) Save(ctx context.Context, doc *entity.StoredDocument) (string, error) {
	now := s.now()
	rec, err := toRecord(doc)
	if err != nil {
		return "", err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	id := uuid.NewString()
	if size := documentSize(s.collection, id, rec); size > maxDocumentBytes {
		s.logger.Warn("store.firestore.too_large",
			"patient_id", doc.PatientID,
			"filename", doc.Filename,
			"file_size", doc.FileSize,
			"document_bytes", size,
			"limit_bytes", maxDocumentBytes,
		)
		return "", fmt.Errorf("save %s: %w", doc.Filename, ErrDocumentTooLarge)
	}
	if _, err := s.docs().Doc(id).Create(ctx, rec); err != nil {
		s.logger.Error("store.primary.save_failed", "store", s.Name(), "patient_id", doc.PatientID, "error", err)
		return "", fmt.Errorf("create document: %w", err)
	}
	doc.ID, doc.CreatedAt, doc.UpdatedAt = id, rec.CreatedAt, rec.UpdatedAt
	return id, nil
}

func (s *Store) GetByID(ctx context.Context, id string, includePayload bool) (*entity.StoredDocument, error) {
	snap, err := s.docs().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	d, err := fromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if !includePayload {
		*d = d.WithoutPayload()
	}
	return d, nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, error) {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	it := s.docs().
		Where("patient_id", "==", patientID).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	out := make([]entity.StoredDocument, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		d, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d.WithoutPayload())
	}
	return out, nil
}

func (s *Store) UpdateOCRResults(ctx context.Context, id string, patch entity.DocumentPatch) (bool, error) {
	ocr, err := encodeRecords(patch.OCRResults)
	if err != nil {
		return false, err
	}
	updates := []firestore.Update{
		{Path: "extracted_text", Value: patch.ExtractedText},
		{Path: "ocr_results", Value: ocr},
		{Path: "text_count", Value: int64(patch.TextCount)},
		{Path: "processing_time", Value: patch.ProcessingTime},
		{Path: "updated_at", Value: s.now()},
	}
	if _, err := s.docs().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("update document %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.docs().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) Close() error { return s.client.Close() }

// documentSize follows Firestore's storage-size rules: strings count their
// bytes plus one, numbers and timestamps 8, plus the document name and a
// fixed 32. Metadata is sized by its JSON encoding.
func documentSize(collection, id string, rec record) int {
	str := func(v string) int { return len(v) + 1 }
	ptr := func(v *string) int {
		if v == nil {
			return 1
		}
		return str(*v)
	}
	fields := []struct {
		name string
		size int
	}{
		{"patient_id", str(rec.PatientID)},
		{"document_type", str(rec.DocumentType)},
		{"filename", str(rec.Filename)},
		{"file_type", str(rec.FileType)},
		{"file_size", 8},
		{"base64_data", str(rec.Base64Data)},
		{"extracted_text", ptr(rec.ExtractedText)},
		{"ocr_results", ptr(rec.OCRResults)},
		{"text_count", 8},
		{"confidence_score", 8},
		{"processing_time", 8},
		{"processing_method", str(rec.ProcessingMethod)},
		{"created_at", 8},
		{"updated_at", 8},
	}
	size := str(collection) + str(id) + 16 + 32
	for _, f := range fields {
		size += str(f.name) + f.size
	}
	if meta, err := json.Marshal(rec.Metadata); err == nil {
		size += str("metadata") + len(meta)
	}
	return size
}

func toRecord(doc *entity.StoredDocument) (record, error) {
	ocr, err := encodeRecords(doc.OCRResults)
	if err != nil {
		return record{}, err
	}
	rec := record{
		PatientID:        doc.PatientID,
		DocumentType:     string(doc.DocumentType),
		Filename:         doc.Filename,
		FileType:         string(doc.FileType),
		FileSize:         int64(doc.FileSize),
		Base64Data:       doc.Base64Data,
		ExtractedText:    doc.ExtractedText,
		OCRResults:       ocr,
		ConfidenceScore:  doc.ConfidenceScore,
		ProcessingTime:   doc.ProcessingTime,
		ProcessingMethod: string(doc.ProcessingMethod),
		Metadata:         doc.Metadata,
		CreatedAt:        doc.CreatedAt,
	}
	if doc.TextCount != nil {
		n := int64(*doc.TextCount)
		rec.TextCount = &n
	}
	return rec, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*entity.StoredDocument, error) {
	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", snap.Ref.ID, err)
	}
	d := &entity.StoredDocument{
		ID:               snap.Ref.ID,
		PatientID:        rec.PatientID,
		DocumentType:     constants.DocumentType(rec.DocumentType),
		Filename:         rec.Filename,
		FileType:         constants.FileType(rec.FileType),
		FileSize:         int(rec.FileSize),
		Base64Data:       rec.Base64Data,
		ExtractedText:    rec.ExtractedText,
		ConfidenceScore:  rec.ConfidenceScore,
		ProcessingTime:   rec.ProcessingTime,
		ProcessingMethod: constants.ProcessingMethod(rec.ProcessingMethod),
		Metadata:         rec.Metadata,
		CreatedAt:        rec.CreatedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
	if rec.TextCount != nil {
		n := int(*rec.TextCount)
		d.TextCount = &n
	}
	if rec.OCRResults != nil && *rec.OCRResults != "" {
		if err := json.Unmarshal([]byte(*rec.OCRResults), &d.OCRResults); err != nil {
			return nil, fmt.Errorf("decode ocr_results %s: %w", snap.Ref.ID, err)
		}
	}
	return d, nil
}

func encodeRecords(recs []entity.ExtractedRecord) (*string, error) {
	if recs == nil {
		return nil, nil
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr_results: %w", err)
	}
	s := string(b)
	return &s, nil
}

var _ repository.DocumentStore = (*Store)(nil)
