package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
)

// emptyPDF is a structurally valid PDF whose page tree has no kids.
func emptyPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

type popplerCall struct {
	name string
	args []string
}

// popplerRunner records invocations and fakes pdftotext/pdftoppm output.
type popplerRunner struct {
	mu    sync.Mutex
	calls []popplerCall
	text  string
	png   []byte
	err   error
}

func (r *popplerRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, popplerCall{name: name, args: args})
	r.mu.Unlock()
	if r.err != nil {
		return nil, []byte("Syntax Error: broken xref"), r.err
	}
	if name == "pdftoppm" && slices.Contains(args, "-singlefile") {
		prefix := args[len(args)-1]
		if err := os.WriteFile(prefix+".png", r.png, 0o600); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	return []byte(r.text), nil, nil
}

func openPoppler(t *testing.T, r *popplerRunner) *popplerDoc {
	t.Helper()
	b := NewPopplerBackend(PopplerConfig{TempDir: t.TempDir()}, r, discardLogger())
	doc, err := b.Open(context.Background(), emptyPDF())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return doc.(*popplerDoc)
}

func TestPopplerPageText(t *testing.T) {
	r := &popplerRunner{text: "Hemoglobin 13.5\n"}
	doc := openPoppler(t, r)
	defer func() { _ = doc.Close() }()

	got, err := doc.PageText(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hemoglobin 13.5\n" {
		t.Errorf("text = %q", got)
	}
	c := r.calls[0]
	want := []string{"-f", "3", "-l", "3", "-layout", "-enc", "UTF-8", "-eol", "unix", doc.path, "-"}
	if c.name != "pdftotext" || !slices.Equal(c.args, want) {
		t.Errorf("call = %s %v", c.name, c.args)
	}
}

func TestPopplerRenderPage(t *testing.T) {
	img := []byte("\x89PNG fake")
	r := &popplerRunner{png: img}
	doc := openPoppler(t, r)

	got, err := doc.RenderPage(context.Background(), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Errorf("image = %q", got)
	}
	c := r.calls[0]
	prefix := doc.dir + string(os.PathSeparator) + "page-2"
	want := []string{"-f", "2", "-l", "2", "-r", "144", "-png", "-singlefile", doc.path, prefix}
	if c.name != "pdftoppm" || !slices.Equal(c.args, want) {
		t.Errorf("call = %s %v", c.name, c.args)
	}
	if _, err := os.Stat(prefix + ".png"); !os.IsNotExist(err) {
		t.Error("rendered page should be removed after reading")
	}

	// scale 0 renders at 72 dpi
	if _, err := doc.RenderPage(context.Background(), 1, 0); err != nil {
		t.Fatal(err)
	}
	if r.calls[1].args[5] != "72" {
		t.Errorf("dpi = %s", r.calls[1].args[5])
	}

	dir := doc.dir
	if err := doc.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("work dir %s not removed", dir)
	}
}

func TestPopplerErrors(t *testing.T) {
	r := &popplerRunner{err: errors.New("exit status 1")}
	doc := openPoppler(t, r)
	defer func() { _ = doc.Close() }()

	if _, err := doc.PageText(context.Background(), 1); err == nil || !strings.Contains(err.Error(), "broken xref") {
		t.Errorf("PageText err = %v", err)
	}
	if _, err := doc.RenderPage(context.Background(), 1, 2); err == nil || !strings.Contains(err.Error(), "pdftoppm page 1") {
		t.Errorf("RenderPage err = %v", err)
	}

	b := NewPopplerBackend(PopplerConfig{TempDir: t.TempDir()}, r, discardLogger())
	if _, err := b.Open(context.Background(), []byte("not a pdf")); err == nil {
		t.Error("Open should reject non-PDF bytes")
	}
}

func TestPDFZeroPages(t *testing.T) {
	r := &popplerRunner{}
	backend := NewPopplerBackend(PopplerConfig{TempDir: t.TempDir()}, r, discardLogger())
	ext := NewExtractor(Config{}, &fakeEngine{}, nil, backend, discardLogger())

	res := ext.Extract(context.Background(), emptyPDF(), "application/pdf", "empty.pdf")
	if !res.Success || res.TextCount != 0 || res.TotalPages != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Results == nil || len(res.Results) != 0 {
		t.Errorf("results = %#v, want empty non-nil slice", res.Results)
	}
	if len(r.calls) != 0 {
		t.Errorf("no poppler calls expected, got %v", r.calls)
	}
}
