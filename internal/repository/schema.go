package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fallbackFileSchema describes the JSON file kept by FileStore.
const fallbackFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["documents"],
  "properties": {
    "last_updated": {"type": ["string", "null"]},
    "documents": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["id", "patient_id", "filename", "file_size", "processing_method", "created_at"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "patient_id": {"type": "string"},
          "document_type": {"type": "string"},
          "filename": {"type": "string"},
          "file_type": {"type": "string"},
          "file_size": {"type": "integer", "minimum": 0},
          "base64_data": {"type": "string"},
          "extracted_text": {"type": ["string", "null"]},
          "ocr_results": {"type": ["array", "null"]},
          "text_count": {"type": ["integer", "null"]},
          "confidence_score": {"type": ["number", "null"]},
          "processing_time": {"type": ["number", "null"]},
          "processing_method": {"type": "string"},
          "metadata": {"type": ["object", "null"]},
          "created_at": {"type": "string"},
          "updated_at": {"type": "string"}
        }
      }
    }
  }
}`

var (
	fallbackSchemaOnce sync.Once
	fallbackSchema     *jsonschema.Schema
	fallbackSchemaErr  error
)

// validateFallbackFile checks raw file bytes against fallbackFileSchema.
func validateFallbackFile(data []byte) error {
	fallbackSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fallback.json", strings.NewReader(fallbackFileSchema)); err != nil {
			fallbackSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		fallbackSchema, fallbackSchemaErr = compiler.Compile("fallback.json")
		if fallbackSchemaErr != nil {
			fallbackSchemaErr = fmt.Errorf("compile schema: %w", fallbackSchemaErr)
		}
	})
	if fallbackSchemaErr != nil {
		return fallbackSchemaErr
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := fallbackSchema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
