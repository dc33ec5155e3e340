package llm

import (
	"context"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// VisionClient is the remote vision-model fallback used when on-device OCR
// comes back empty, times out, or errors.
//
// ExtractImage never returns a Go error: failures come back as a
// Success=false result with ProcessingSummary.Method = vision_llm.
type VisionClient interface {
	Name() string
	Available() bool
	ExtractImage(ctx context.Context, img []byte, filename string) entity.ExtractionResult
}
