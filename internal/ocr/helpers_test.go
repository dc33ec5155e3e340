package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeEngine struct {
	lines  []Line
	err    error
	block  bool // wait for ctx instead of answering
	calls  atomic.Int32
	closed atomic.Bool
	seen   func(img []byte)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, img []byte) ([]Line, error) {
	f.calls.Add(1)
	if f.seen != nil {
		f.seen(img)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.lines, f.err
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeVision struct {
	available bool
	text      string
	fail      bool
	calls     atomic.Int32
}

func (f *fakeVision) Name() string    { return "fake-vision" }
func (f *fakeVision) Available() bool { return f.available }

func (f *fakeVision) ExtractImage(_ context.Context, img []byte, filename string) entity.ExtractionResult {
	f.calls.Add(1)
	if f.fail {
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, "model refused", time.Millisecond)
	}
	return llm.VisionSuccess(filename, img, f.text, time.Millisecond)
}

type fakePDF struct {
	pages     int
	texts     map[int]string
	renderErr map[int]error
	openErr   error
	img       []byte
	closed    atomic.Bool
}

func (f *fakePDF) Open(context.Context, []byte) (PDFDocument, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakePDF) PageCount() int { return f.pages }

func (f *fakePDF) PageText(_ context.Context, page int) (string, error) {
	return f.texts[page], nil
}

func (f *fakePDF) RenderPage(_ context.Context, page, _ int) ([]byte, error) {
	if err := f.renderErr[page]; err != nil {
		return nil, err
	}
	return f.img, nil
}

func (f *fakePDF) Close() error {
	f.closed.Store(true)
	return nil
}
