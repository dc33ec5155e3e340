package llm

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// VisionSuccess wraps the model's reply as a single page-sized record.
func VisionSuccess(filename string, img []byte, text string, elapsed time.Duration) entity.ExtractionResult {
	w, h := ImageSize(img)
	text = strings.TrimSpace(text)
	conf := constants.VisionLLMConfidence
	return entity.ExtractionResult{
		Success:    true,
		Filename:   filename,
		FileType:   constants.IMAGE,
		TotalPages: 1,
		TextCount:  1,
		Results: []entity.ExtractedRecord{{
			Text:       text,
			Confidence: conf,
			Method:     constants.MethodVisionLLM,
			BBox:       entity.PageBBox(w, h),
			Locator:    1,
		}},
		ExtractedText:   text,
		ConfidenceScore: &conf,
		ProcessingTime:  elapsed.Seconds(),
		ProcessingSummary: entity.ProcessingSummary{
			TotalPages: 1,
			OCRPages:   1,
			Method:     constants.MethodVisionLLM,
		},
	}
}

// VisionFailure is the terminal result of a failed fallback call.
func VisionFailure(filename string, kind entity.ErrorKind, msg string, elapsed time.Duration) entity.ExtractionResult {
	res := entity.Failure(filename, constants.IMAGE, kind, msg)
	res.TotalPages = 1
	res.ProcessingTime = elapsed.Seconds()
	res.ProcessingSummary.TotalPages = 1
	res.ProcessingSummary.OCRPages = 1
	res.ProcessingSummary.Method = constants.MethodVisionLLM
	return res
}

// Unavailable is returned when a client is called without credentials.
func Unavailable(filename string) entity.ExtractionResult {
	return VisionFailure(filename, entity.ErrorKindVisionLLMUnavailable, "vision llm fallback is not configured", 0)
}
