package ingest

import (
	"context"

	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath  string `json:"source_path"`
	DocumentID  string `json:"document_id,omitempty"`
	StorageType string `json:"storage_type,omitempty"`
	Success     bool   `json:"success"`
	TextCount   int    `json:"text_count"`
	Err         string `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Succeeded uint32 `json:"succeeded"`
	Failed    uint32 `json:"failed"`
}

// Ingester is the behavior the walker depends on; *pipeline.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResponse, error)
}
