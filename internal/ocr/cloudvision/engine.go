// Package cloudvision recognizes text with Google Cloud Vision DOCUMENT_TEXT_DETECTION.
package cloudvision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/ocr"
)

var ErrMissingCredentials = errors.New("no google credentials found in environment")

// Engine emits one line per detected paragraph.
type Engine struct {
	client *vision.ImageAnnotatorClient
	hints  []string
}

// New creates a client from GOOGLE_CREDENTIALS (inline JSON),
// GOOGLE_APPLICATION_CREDENTIALS, or default credentials, in that order.
func New(ctx context.Context, languageHints ...string) (*Engine, error) {
	var (
		client *vision.ImageAnnotatorClient
		err    error
	)
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrMissingCredentials, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &Engine{client: client, hints: languageHints}, nil
}

// Factory adapts New to ocr.EngineFactory.
func Factory(languageHints ...string) ocr.EngineFactory {
	return func(ctx context.Context) (ocr.Engine, error) {
		return New(ctx, languageHints...)
	}
}

func (e *Engine) Name() string { return "cloudvision" }

func (e *Engine) Recognize(ctx context.Context, img []byte) ([]ocr.Line, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: e.hints},
			},
		},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("batch annotate: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, nil
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return nil, fmt.Errorf("vision api: %s", r.GetError().GetMessage())
	}
	return paragraphLines(r.GetFullTextAnnotation()), nil
}

func paragraphLines(fa *visionpb.TextAnnotation) []ocr.Line {
	if fa == nil {
		return nil
	}
	var lines []ocr.Line
	for _, page := range fa.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				var b strings.Builder
				for _, word := range para.GetWords() {
					for _, sym := range word.GetSymbols() {
						b.WriteString(sym.GetText())
						if brk := sym.GetProperty().GetDetectedBreak(); brk != nil {
							switch brk.GetType() {
							case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
								b.WriteByte(' ')
							case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
								b.WriteByte('\n')
							}
						}
					}
				}
				lines = append(lines, ocr.Line{
					Box:        quad(para.GetBoundingBox()),
					Text:       strings.TrimSpace(b.String()),
					Confidence: float64(para.GetConfidence()),
				})
			}
		}
	}
	return lines
}

func quad(poly *visionpb.BoundingPoly) entity.BBox {
	var box entity.BBox
	vs := poly.GetVertices()
	for i := 0; i < len(vs) && i < 4; i++ {
		box[i] = entity.Point{float64(vs[i].GetX()), float64(vs[i].GetY())}
	}
	return box
}

func (e *Engine) Close() error {
	return e.client.Close()
}
