package entity

import (
	"encoding/base64"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
)

// DocumentMetadata is the free-form map persisted with every document.
// Known keys are upload_timestamp, is_image, processing_type, ocr_success, file_extension.
type DocumentMetadata map[string]any

// StoredDocument is the persisted envelope for one ingested file.
type StoredDocument struct {
	ID               string                     `json:"id"`
	PatientID        string                     `json:"patient_id"`
	DocumentType     constants.DocumentType     `json:"document_type"`
	Filename         string                     `json:"filename"`
	FileType         constants.FileType         `json:"file_type"`
	FileSize         int                        `json:"file_size"`
	Base64Data       string                     `json:"base64_data,omitempty"`
	ExtractedText    *string                    `json:"extracted_text"`
	OCRResults       []ExtractedRecord          `json:"ocr_results"`
	TextCount        *int                       `json:"text_count"`
	ConfidenceScore  *float64                   `json:"confidence_score"`
	ProcessingTime   *float64                   `json:"processing_time"`
	ProcessingMethod constants.ProcessingMethod `json:"processing_method"`
	Metadata         DocumentMetadata           `json:"metadata"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// IsImage reads the is_image metadata flag.
func (d *StoredDocument) IsImage() bool {
	v, _ := d.Metadata["is_image"].(bool)
	return v
}

// Payload decodes Base64Data back to the original bytes.
func (d *StoredDocument) Payload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Base64Data)
}

// WithoutPayload returns a copy stripped of base64_data and ocr_results.
func (d StoredDocument) WithoutPayload() StoredDocument {
	d.Base64Data = ""
	d.OCRResults = nil
	return d
}

// DocumentPatch holds the fields update_ocr_results may overwrite.
type DocumentPatch struct {
	ExtractedText  string
	OCRResults     []ExtractedRecord
	TextCount      int
	ProcessingTime float64
}
