// Package tesseract runs libtesseract in-process through gosseract (cgo).
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/ocr"
)

type Config struct {
	Language    string // default "eng"
	TessdataDir string
}

// Engine wraps one gosseract client. The client is not reentrant; wrap the
// engine in ocr.LazyEngine with concurrency 1.
type Engine struct {
	client *gosseract.Client
}

// New is an ocr.EngineFactory body.
func New(_ context.Context, cfg Config) (*Engine, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	client := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(cfg.Language); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	return &Engine{client: client}, nil
}

// Factory adapts New to ocr.EngineFactory.
func Factory(cfg Config) ocr.EngineFactory {
	return func(ctx context.Context) (ocr.Engine, error) {
		return New(ctx, cfg)
	}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(_ context.Context, img []byte) ([]ocr.Line, error) {
	if err := e.client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	lines := make([]ocr.Line, 0, len(boxes))
	for _, b := range boxes {
		r := b.Box
		x0, y0, x1, y1 := float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)
		lines = append(lines, ocr.Line{
			Box:        entity.BBox{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}},
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
		})
	}
	return lines, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}
