package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
)

type ImageConfig struct {
	MaxDimension int           // default 2048
	Timeout      time.Duration // primary engine budget, default 120s
}

// ImageOCR runs the primary engine under a wall-clock budget and escalates
// to the vision fallback on an empty result, a timeout, or an engine error.
type ImageOCR struct {
	cfg    ImageConfig
	engine Engine
	vision llm.VisionClient
	logger *slog.Logger
}

// NewImageOCR accepts a nil engine (every call escalates) and a nil vision client.
func NewImageOCR(cfg ImageConfig, engine Engine, vision llm.VisionClient, logger *slog.Logger) *ImageOCR {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = constants.DefaultMaxImageDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultOCRTimeoutSeconds * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageOCR{cfg: cfg, engine: engine, vision: vision, logger: logger}
}

// VisionAvailable reports whether escalation has somewhere to go.
func (o *ImageOCR) VisionAvailable() bool {
	return o.vision != nil && o.vision.Available()
}

func (o *ImageOCR) EngineName() string {
	if o.engine == nil {
		return ""
	}
	return o.engine.Name()
}

// Extract converts one raster image into records. It never returns an error;
// failures are reported in the result.
func (o *ImageOCR) Extract(ctx context.Context, data []byte, filename string) entity.ExtractionResult {
	start := time.Now()
	o.logger.Debug("ocr.image.start", "filename", filename, "bytes", len(data))

	prep, err := PrepareImage(data, o.cfg.MaxDimension)
	if err != nil {
		o.logger.Warn("ocr.image.decode_failed", "filename", filename, "error", err)
		res := entity.Failure(filename, constants.IMAGE, entity.ErrorKindDecode, err.Error())
		res.ProcessingTime = time.Since(start).Seconds()
		return res
	}
	if prep.Scale != 1 {
		o.logger.Debug("ocr.image.resized",
			"filename", filename,
			"src", fmt.Sprintf("%dx%d", prep.SrcW, prep.SrcH),
			"dst", fmt.Sprintf("%dx%d", prep.Width, prep.Height),
		)
	}

	lines, err := o.recognize(ctx, prep.PNG)
	if err != nil {
		kind, msg := entity.ErrorKindOCRPrimaryError, "ocr engine error: "+err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			kind, msg = entity.ErrorKindOCRPrimaryTimeout, fmt.Sprintf("ocr timeout after %s", o.cfg.Timeout)
		}
		o.logger.Warn("ocr.image.primary_failed",
			"filename", filename, "engine", o.EngineName(), "kind", kind, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if o.VisionAvailable() {
			return o.escalate(ctx, data, filename, start, msg)
		}
		res := entity.Failure(filename, constants.IMAGE, kind, msg)
		res.TotalPages = 1
		res.ProcessingSummary.TotalPages = 1
		res.ProcessingSummary.OCRPages = 1
		res.ProcessingSummary.Method = constants.MethodOCR
		res.ProcessingTime = time.Since(start).Seconds()
		return res
	}

	records := make([]entity.ExtractedRecord, 0, len(lines))
	skipped := 0
	for _, ln := range lines {
		rec, ok := lineToRecord(prep.toSource(ln))
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		o.logger.Debug("ocr.image.skipped_lines", "filename", filename, "skipped", skipped)
	}

	if len(records) == 0 && o.VisionAvailable() {
		o.logger.Info("ocr.image.empty_escalating", "filename", filename, "engine", o.EngineName())
		return o.escalate(ctx, data, filename, start, "")
	}

	o.logger.Info("ocr.image.ok",
		"filename", filename,
		"engine", o.EngineName(),
		"records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entity.ExtractionResult{
		Success:        true,
		Filename:       filename,
		FileType:       constants.IMAGE,
		TotalPages:     1,
		Results:        records,
		ProcessingTime: time.Since(start).Seconds(),
		ProcessingSummary: entity.ProcessingSummary{
			TotalPages: 1,
			OCRPages:   1,
			Method:     constants.MethodOCR,
		},
	}
}

func (o *ImageOCR) escalate(ctx context.Context, data []byte, filename string, start time.Time, primaryErr string) entity.ExtractionResult {
	res := o.vision.ExtractImage(ctx, data, filename)
	res.ProcessingTime = time.Since(start).Seconds()
	if !res.Success && primaryErr != "" {
		res.Error = primaryErr + "; fallback: " + res.Error
		res.ProcessingSummary.Error = res.Error
	}
	o.logger.Info("ocr.image.escalated",
		"filename", filename,
		"provider", o.vision.Name(),
		"success", res.Success,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

type recognizeResult struct {
	lines []Line
	err   error
}

// recognize bounds the engine call by the configured budget. The budget
// starts once a LazyEngine slot is held, so time spent queued behind other
// pages is not charged to this one. Engines that ignore ctx keep running in
// the background (holding their slot); their result is dropped.
func (o *ImageOCR) recognize(ctx context.Context, img []byte) ([]Line, error) {
	if o.engine == nil {
		return nil, errors.New("no ocr engine configured")
	}
	run, release := o.engine.Recognize, func() {}
	if lazy, ok := o.engine.(*LazyEngine); ok {
		rel, err := lazy.acquire(ctx)
		if err != nil {
			return nil, err
		}
		run, release = lazy.recognizeHeld, rel
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	ch := make(chan recognizeResult, 1)
	go func() {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				ch <- recognizeResult{err: fmt.Errorf("ocr engine panic: %v", r)}
			}
		}()
		lines, err := run(ctx, img)
		ch <- recognizeResult{lines: lines, err: err}
	}()

	select {
	case r := <-ch:
		return r.lines, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lineToRecord rejects lines without text or with non-finite numbers.
func lineToRecord(ln Line) (entity.ExtractedRecord, bool) {
	text := strings.TrimSpace(ln.Text)
	if text == "" || math.IsNaN(ln.Confidence) || math.IsInf(ln.Confidence, 0) {
		return entity.ExtractedRecord{}, false
	}
	for _, p := range ln.Box {
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return entity.ExtractedRecord{}, false
			}
		}
	}
	return entity.ExtractedRecord{
		Text:       text,
		Confidence: min(max(ln.Confidence, 0), 1),
		Method:     constants.MethodOCR,
		BBox:       ln.Box,
		Locator:    1,
	}, true
}
