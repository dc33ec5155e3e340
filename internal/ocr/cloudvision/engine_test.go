package cloudvision

import (
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

func sym(text string, brk visionpb.TextAnnotation_DetectedBreak_BreakType) *visionpb.Symbol {
	s := &visionpb.Symbol{Text: text}
	if brk != visionpb.TextAnnotation_DetectedBreak_UNKNOWN {
		s.Property = &visionpb.TextAnnotation_TextProperty{
			DetectedBreak: &visionpb.TextAnnotation_DetectedBreak{Type: brk},
		}
	}
	return s
}

func TestParagraphLines(t *testing.T) {
	none := visionpb.TextAnnotation_DetectedBreak_UNKNOWN
	fa := &visionpb.TextAnnotation{
		Pages: []*visionpb.Page{{
			Blocks: []*visionpb.Block{{
				Paragraphs: []*visionpb.Paragraph{
					{
						Confidence: 0.5,
						BoundingBox: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
							{X: 1, Y: 2}, {X: 30, Y: 2}, {X: 30, Y: 12}, {X: 1, Y: 12},
						}},
						Words: []*visionpb.Word{
							{Symbols: []*visionpb.Symbol{sym("R", none), sym("x", visionpb.TextAnnotation_DetectedBreak_SPACE)}},
							{Symbols: []*visionpb.Symbol{sym("5", none), sym("0", visionpb.TextAnnotation_DetectedBreak_LINE_BREAK)}},
						},
					},
					{
						Confidence: 0.9,
						Words: []*visionpb.Word{
							{Symbols: []*visionpb.Symbol{sym("o", none), sym("k", none)}},
						},
					},
				},
			}},
		}},
	}

	lines := paragraphLines(fa)
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0].Text != "Rx 50" {
		t.Errorf("text = %q", lines[0].Text)
	}
	if lines[0].Confidence != 0.5 {
		t.Errorf("confidence = %v", lines[0].Confidence)
	}
	if lines[0].Box[2] != (entity.Point{30, 12}) {
		t.Errorf("box = %v", lines[0].Box)
	}
	if !lines[1].Box.IsZero() {
		t.Errorf("paragraph without geometry should have a zero box, got %v", lines[1].Box)
	}
	if paragraphLines(nil) != nil {
		t.Error("nil annotation should give no lines")
	}
}
