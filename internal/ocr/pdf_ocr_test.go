package ocr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

func newTestExtractor(eng Engine, backend PDFBackend) *Extractor {
	return NewExtractor(Config{PDFConcurrency: 2}, eng, nil, backend, discardLogger())
}

func TestPDFMixedPages(t *testing.T) {
	backend := &fakePDF{
		pages:     3,
		texts:     map[int]string{1: "  Lab report\t\tpage one  "},
		renderErr: map[int]error{3: errors.New("pdftoppm crashed")},
		img:       pngBytes(t, 60, 80),
	}
	eng := &fakeEngine{lines: []Line{{Box: box(5, 5), Text: "scanned result", Confidence: 0.8}}}

	res := newTestExtractor(eng, backend).Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf", "report.pdf")

	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if !backend.closed.Load() {
		t.Error("document was not closed")
	}
	if len(res.Results) != 3 {
		t.Fatalf("got %d records: %+v", len(res.Results), res.Results)
	}
	want := []struct {
		text    string
		method  constants.Method
		locator int
	}{
		{"Lab report page one", constants.MethodNative, 1},
		{"scanned result", constants.MethodOCR, 2},
		{"", constants.MethodOCRFailed, 3},
	}
	for i, w := range want {
		r := res.Results[i]
		if r.Text != w.text || r.Method != w.method || r.Locator != w.locator {
			t.Errorf("record %d = %+v, want %+v", i, r, w)
		}
	}

	s := res.ProcessingSummary
	if s.TotalPages != 3 || s.NativeTextPages != 1 || s.OCRPages != 2 || !s.MixedProcessing {
		t.Errorf("summary = %+v", s)
	}
	if s.Method != "" {
		t.Errorf("mixed documents report no single method, got %q", s.Method)
	}
	if res.ExtractedText != "Lab report page one\nscanned result" {
		t.Errorf("extracted text = %q", res.ExtractedText)
	}
	if res.TextCount != 3 || res.TotalPages != 3 || res.FileType != constants.PDF {
		t.Errorf("text_count=%d total_pages=%d file_type=%s", res.TextCount, res.TotalPages, res.FileType)
	}
}

func TestPDFAllNative(t *testing.T) {
	backend := &fakePDF{pages: 2, texts: map[int]string{1: "one", 2: "two"}}
	eng := &fakeEngine{}
	res := newTestExtractor(eng, backend).Extract(context.Background(), []byte("%PDF"), "", "notes.pdf")

	if res.ProcessingSummary.Method != constants.MethodNative || res.ProcessingSummary.MixedProcessing {
		t.Errorf("summary = %+v", res.ProcessingSummary)
	}
	if eng.calls.Load() != 0 {
		t.Error("native pages should not be OCR'd")
	}
}

func TestPDFOpenFailure(t *testing.T) {
	backend := &fakePDF{openErr: errors.New("not a pdf")}
	res := newTestExtractor(&fakeEngine{}, backend).Extract(context.Background(), []byte("junk"), "application/pdf", "x.pdf")
	if res.Success || res.ErrorKind != entity.ErrorKindDecode {
		t.Fatalf("want decode failure, got %+v", res)
	}
	if res.FileType != constants.PDF {
		t.Errorf("file type = %q", res.FileType)
	}
}

func TestPDFPageLimit(t *testing.T) {
	backend := &fakePDF{pages: 5, texts: map[int]string{1: "a", 2: "b", 3: "c", 4: "d", 5: "e"}}
	ext := NewPDFExtractor(PDFConfig{MaxPages: 2}, backend, NewImageOCR(ImageConfig{}, nil, nil, discardLogger()), discardLogger())
	res := ext.Extract(context.Background(), nil, "big.pdf")
	if len(res.Results) != 2 {
		t.Errorf("got %d records, want 2", len(res.Results))
	}
	if res.TotalPages != 5 {
		t.Errorf("total pages should report the whole document, got %d", res.TotalPages)
	}
}

// slowEngine answers after delay, honouring ctx, and tracks peak concurrency.
type slowEngine struct {
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (e *slowEngine) Name() string { return "slow" }
func (e *slowEngine) Close() error { return nil }

func (e *slowEngine) Recognize(ctx context.Context, _ []byte) ([]Line, error) {
	n := e.running.Add(1)
	defer e.running.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(e.delay):
		return []Line{{Box: box(5, 5), Text: "HELLO", Confidence: 0.9}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPDFSerializedEngineBudgetPerCall(t *testing.T) {
	const pages = 8
	slow := &slowEngine{delay: 60 * time.Millisecond}
	lazy := NewLazyEngine("slow", func(context.Context) (Engine, error) { return slow, nil }, 1, discardLogger())
	backend := &fakePDF{pages: pages, img: pngBytes(t, 40, 40)}
	// the whole scan takes ~480ms; each call is well inside its 200ms budget
	ext := NewExtractor(Config{OCRTimeout: 200 * time.Millisecond, PDFConcurrency: pages}, lazy, nil, backend, discardLogger())

	res := ext.Extract(context.Background(), []byte("%PDF"), "application/pdf", "scan.pdf")
	if !res.Success || len(res.Results) != pages {
		t.Fatalf("success=%v records=%d", res.Success, len(res.Results))
	}
	for i, r := range res.Results {
		if r.Method != constants.MethodOCR || r.Text != "HELLO" || r.Locator != i+1 {
			t.Errorf("record %d = %+v", i, r)
		}
	}
	if p := slow.peak.Load(); p != 1 {
		t.Errorf("engine ran %d calls at once, want 1", p)
	}
}
