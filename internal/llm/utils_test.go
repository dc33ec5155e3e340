package llm

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/joseph-ayodele/medical-lab/constants"
)

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"plain text":                     "plain text",
		"```\nRx: aspirin\n```":          "Rx: aspirin",
		"```text\nline 1\nline 2\n```  ": "line 1\nline 2",
		"  no fence  ":                   "no fence",
	}
	for in, want := range tests {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))

	var pngBuf bytes.Buffer
	_ = png.Encode(&pngBuf, img)
	out, mt, err := EncodeImage(pngBuf.Bytes())
	if err != nil || mt != "image/png" || !bytes.Equal(out, pngBuf.Bytes()) {
		t.Errorf("png should pass through unchanged: mt=%q err=%v", mt, err)
	}

	var bmpBuf bytes.Buffer
	_ = bmp.Encode(&bmpBuf, img)
	out, mt, err = EncodeImage(bmpBuf.Bytes())
	if err != nil {
		t.Fatalf("EncodeImage(bmp): %v", err)
	}
	if mt != "image/png" || !bytes.HasPrefix(out, []byte("\x89PNG")) {
		t.Errorf("bmp should be re-encoded as png, got %q", mt)
	}

	if _, _, err := EncodeImage([]byte("nope")); err == nil {
		t.Error("expected error for undecodable bytes")
	}
}

func TestDataURL(t *testing.T) {
	if got := DataURL([]byte("hi"), "image/png"); got != "data:image/png;base64,aGk=" {
		t.Errorf("DataURL = %q", got)
	}
}

func TestVisionSuccess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	res := VisionSuccess("scan.png", buf.Bytes(), "  Rx: metformin 500 mg \n", 0)
	if !res.Success || len(res.Results) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	r := res.Results[0]
	if r.Text != "Rx: metformin 500 mg" || r.Confidence != constants.VisionLLMConfidence {
		t.Errorf("record = %+v", r)
	}
	if r.BBox[2][0] != 640 || r.BBox[2][1] != 480 {
		t.Errorf("bbox should cover the page, got %v", r.BBox)
	}
	if res.ProcessingSummary.Method != constants.MethodVisionLLM {
		t.Errorf("method = %q", res.ProcessingSummary.Method)
	}

	if w, h := ImageSize([]byte("garbage")); w != 1000 || h != 1000 {
		t.Errorf("ImageSize fallback = %vx%v", w, h)
	}
	if !strings.Contains(Unavailable("x.png").Error, "not configured") {
		t.Error("Unavailable should explain itself")
	}
}
