package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// SQLStore is the primary document store on Postgres or SQLite.
type SQLStore struct {
	db       *sql.DB
	pool     *pgxpool.Pool // nil for sqlite
	dialect  dialect
	table    string
	logger   *slog.Logger
	migrated atomic.Bool
	now      func() time.Time
}

func newSQLStore(db *sql.DB, pool *pgxpool.Pool, d dialect, cfg Config, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		pool:    pool,
		dialect: d,
		table:   cfg.Table,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) Name() string {
	if s.dialect == dialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// Migrate creates the table and index if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	s.migrated.Store(true)
	return nil
}

// Connected pings with a short timeout and migrates on the first success.
func (s *SQLStore) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("store.primary.ping_failed", "store", s.Name(), "error", err)
		return false
	}
	if !s.migrated.Load() {
		if err := s.Migrate(ctx); err != nil {
			s.logger.Error("store.primary.migrate_failed", "store", s.Name(), "error", err)
			return false
		}
	}
	return true
}

func (s *SQLStore) Save(ctx context.Context, doc *entity.StoredDocument) (string, error) {
	id := uuid.NewString()
	now := s.now()
	created := doc.CreatedAt
	if created.IsZero() {
		created = now
	}

	ocrJSON, err := marshalRecords(doc.OCRResults)
	if err != nil {
		return "", err
	}
	meta := doc.Metadata
	if meta == nil {
		meta = entity.DocumentMetadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	q := s.dialect.rebind(fmt.Sprintf(`INSERT INTO %s (
	id, patient_id, document_type, filename, file_type, file_size, base64_data,
	extracted_text, ocr_results, text_count, confidence_score, processing_time,
	processing_method, metadata, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table))

	_, err = s.db.ExecContext(ctx, q,
		id, doc.PatientID, string(doc.DocumentType), doc.Filename, string(doc.FileType), doc.FileSize, doc.Base64Data,
		nullString(doc.ExtractedText), ocrJSON, nullInt(doc.TextCount), nullFloat(doc.ConfidenceScore), nullFloat(doc.ProcessingTime),
		string(doc.ProcessingMethod), string(metaJSON), s.dialect.timeArg(created), s.dialect.timeArg(now),
	)
	if err != nil {
		s.logger.Error("store.primary.save_failed", "store", s.Name(), "patient_id", doc.PatientID, "filename", doc.Filename, "error", err)
		return "", fmt.Errorf("insert document: %w", err)
	}
	doc.ID, doc.CreatedAt, doc.UpdatedAt = id, created, now
	return id, nil
}

var summaryColumns = []string{
	"id", "patient_id", "document_type", "filename", "file_type", "file_size",
	"extracted_text", "text_count", "confidence_score", "processing_time",
	"processing_method", "metadata", "created_at", "updated_at",
}

func (s *SQLStore) GetByID(ctx context.Context, id string, includePayload bool) (*entity.StoredDocument, error) {
	cols := summaryColumns
	if includePayload {
		cols = append(append([]string{}, summaryColumns...), "base64_data", "ocr_results")
	}
	q := s.dialect.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, strings.Join(cols, ", "), s.table))
	row := s.db.QueryRowContext(ctx, q, id)
	doc, err := scanDocument(row, includePayload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, error) {
	q := s.dialect.rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE patient_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		strings.Join(summaryColumns, ", "), s.table))
	rows, err := s.db.QueryContext(ctx, q, patientID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.StoredDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateOCRResults(ctx context.Context, id string, patch entity.DocumentPatch) (bool, error) {
	ocrJSON, err := marshalRecords(patch.OCRResults)
	if err != nil {
		return false, err
	}
	q := s.dialect.rebind(fmt.Sprintf(
		`UPDATE %s SET extracted_text = ?, ocr_results = ?, text_count = ?, processing_time = ?, updated_at = ? WHERE id = ?`,
		s.table))
	res, err := s.db.ExecContext(ctx, q,
		patch.ExtractedText, ocrJSON, patch.TextCount, patch.ProcessingTime, s.dialect.timeArg(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("update document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	q := s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table))
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database connections gracefully
func (s *SQLStore) Close() error {
	s.logger.Info("closing database connections", "store", s.Name())
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, withPayload bool) (*entity.StoredDocument, error) {
	var (
		d                         entity.StoredDocument
		docType, fileType, method string
		text, meta                sql.NullString
		payload, ocrJSON          sql.NullString
		count                     sql.NullInt64
		conf, ptime               sql.NullFloat64
		created, updated          sqlTime
	)
	dest := []any{
		&d.ID, &d.PatientID, &docType, &d.Filename, &fileType, &d.FileSize,
		&text, &count, &conf, &ptime, &method, &meta, &created, &updated,
	}
	if withPayload {
		dest = append(dest, &payload, &ocrJSON)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	d.DocumentType = constants.DocumentType(docType)
	d.FileType = constants.FileType(fileType)
	d.ProcessingMethod = constants.ProcessingMethod(method)
	d.CreatedAt, d.UpdatedAt = created.t, updated.t
	if text.Valid {
		d.ExtractedText = &text.String
	}
	if count.Valid {
		c := int(count.Int64)
		d.TextCount = &c
	}
	if conf.Valid {
		d.ConfidenceScore = &conf.Float64
	}
	if ptime.Valid {
		d.ProcessingTime = &ptime.Float64
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if withPayload {
		d.Base64Data = payload.String
		if ocrJSON.Valid && ocrJSON.String != "" && ocrJSON.String != "null" {
			if err := json.Unmarshal([]byte(ocrJSON.String), &d.OCRResults); err != nil {
				return nil, fmt.Errorf("decode ocr_results: %w", err)
			}
		}
	}
	return &d, nil
}

// marshalRecords maps a nil slice to SQL NULL.
func marshalRecords(recs []entity.ExtractedRecord) (any, error) {
	if recs == nil {
		return nil, nil
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr_results: %w", err)
	}
	return string(b), nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
