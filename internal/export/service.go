package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// DefaultMaxRows caps how many documents one export lists.
const DefaultMaxRows = 1000

const sheet = "Documents"

// Lister is satisfied by *pipeline.Pipeline.
type Lister interface {
	ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, constants.StorageType, error)
}

// Service produces XLSX bytes listing a patient's documents.
type Service struct {
	lister  Lister
	maxRows int
	logger  *slog.Logger
}

func NewService(lister Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{lister: lister, maxRows: DefaultMaxRows, logger: logger}
}

// ExportPatientXLSX returns an XLSX workbook (as bytes) for the patient's
// documents, newest first. from and to are inclusive calendar dates (UTC);
// either may be nil.
func (s *Service) ExportPatientXLSX(ctx context.Context, patientID string, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	docs, storage, err := s.lister.ListByPatient(ctx, patientID, s.maxRows)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs = filterByDate(docs, from, to)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Created",
		"Document ID",
		"Filename",
		"File Type",
		"Processing Method",
		"Text Count",
		"Confidence",
		"Storage",
		"Text Excerpt",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, bold)
	}

	row := 2
	for _, d := range docs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, d.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, d.ID)
		write(3, d.Filename)
		write(4, string(d.FileType))
		write(5, string(d.ProcessingMethod))
		if d.TextCount != nil {
			write(6, *d.TextCount)
		}
		if d.ConfidenceScore != nil {
			write(7, *d.ConfidenceScore)
		}
		write(8, string(storage))
		if d.ExtractedText != nil {
			write(9, truncate(*d.ExtractedText, 140))
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // created
	_ = f.SetColWidth(sheet, "B", "B", 38) // id
	_ = f.SetColWidth(sheet, "C", "C", 32) // filename
	_ = f.SetColWidth(sheet, "D", "H", 14)
	_ = f.SetColWidth(sheet, "I", "I", 60) // excerpt

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"patient_id", patientID,
		"rows", len(docs),
		"storage", storage,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func filterByDate(docs []entity.StoredDocument, from, to *time.Time) []entity.StoredDocument {
	if from == nil && to == nil {
		return docs
	}
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	out := docs[:0:0]
	for _, d := range docs {
		c := day(d.CreatedAt)
		if from != nil && c.Before(day(*from)) {
			continue
		}
		if to != nil && c.After(day(*to)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
