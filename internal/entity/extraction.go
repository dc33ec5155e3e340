package entity

import (
	"github.com/joseph-ayodele/medical-lab/constants"
)

// Point is an (x, y) pair in source-pixel coordinates.
type Point [2]float64

// BBox is a quadrilateral, clockwise from top-left.
type BBox [4]Point

// IsZero reports whether b is the "unknown geometry" box.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// PageBBox returns an axis-aligned box covering a w x h page.
func PageBBox(w, h float64) BBox {
	return BBox{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// ExtractedRecord is one text atom from a document.
type ExtractedRecord struct {
	Text       string           `json:"text"`
	Confidence float64          `json:"confidence"`
	Method     constants.Method `json:"method"`
	BBox       BBox             `json:"bbox"`
	Locator    int              `json:"locator"`
}

// ErrorKind classifies a failed extraction.
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindUnsupportedFormat    ErrorKind = "unsupported_format"
	ErrorKindDecode               ErrorKind = "decode_error"
	ErrorKindOCRPrimaryTimeout    ErrorKind = "ocr_primary_timeout"
	ErrorKindOCRPrimaryError      ErrorKind = "ocr_primary_error"
	ErrorKindVisionLLMUnavailable ErrorKind = "vision_llm_unavailable"
	ErrorKindVisionLLMError       ErrorKind = "vision_llm_error"
)

type ProcessingSummary struct {
	TotalPages      int              `json:"total_pages"`
	NativeTextPages int              `json:"native_text_pages"`
	OCRPages        int              `json:"ocr_pages"`
	MixedProcessing bool             `json:"mixed_processing"`
	Method          constants.Method `json:"method,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// ExtractionResult is the normalized output of one file.
type ExtractionResult struct {
	Success           bool               `json:"success"`
	Filename          string             `json:"filename"`
	FileType          constants.FileType `json:"file_type"`
	TotalPages        int                `json:"total_pages"`
	TextCount         int                `json:"text_count"`
	ExtractedText     string             `json:"extracted_text"`
	FullContent       string             `json:"full_content"`
	Results           []ExtractedRecord  `json:"results"`
	ProcessingSummary ProcessingSummary  `json:"processing_summary"`
	ConfidenceScore   *float64           `json:"confidence_score"`
	ProcessingTime    float64            `json:"processing_time"`
	Error             string             `json:"error,omitempty"`
	ErrorKind         ErrorKind          `json:"error_kind,omitempty"`
	SupportedTypes    []string           `json:"supported_types,omitempty"`
}

// Failure builds a failed result of the same shape with empty records.
func Failure(filename string, ft constants.FileType, kind ErrorKind, msg string) ExtractionResult {
	return ExtractionResult{
		Success:   false,
		Filename:  filename,
		FileType:  ft,
		Results:   []ExtractedRecord{},
		Error:     msg,
		ErrorKind: kind,
		ProcessingSummary: ProcessingSummary{
			Error: msg,
		},
	}
}
