package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFBackend opens PDF bytes for page-wise access.
type PDFBackend interface {
	Open(ctx context.Context, data []byte) (PDFDocument, error)
}

// PDFDocument is an open PDF. PageText and RenderPage must be safe to call
// concurrently for different pages. Pages are 1-indexed.
type PDFDocument interface {
	PageCount() int
	PageText(ctx context.Context, page int) (string, error)
	RenderPage(ctx context.Context, page, scale int) ([]byte, error)
	Close() error
}

type PopplerConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	TempDir   string // parent for per-document work dirs; "" = os.TempDir()
}

// PopplerBackend validates and counts pages with pdfcpu, then shells out to
// poppler's pdftotext/pdftoppm per page.
type PopplerBackend struct {
	cfg    PopplerConfig
	runner Runner
	logger *slog.Logger
}

func NewPopplerBackend(cfg PopplerConfig, runner Runner, logger *slog.Logger) *PopplerBackend {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &PopplerBackend{cfg: cfg, runner: runner, logger: logger}
}

func (b *PopplerBackend) Open(_ context.Context, data []byte) (PDFDocument, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	dir, err := os.MkdirTemp(b.cfg.TempDir, "medlab-pdf-*")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &popplerDoc{backend: b, dir: dir, path: path, pages: pages}, nil
}

type popplerDoc struct {
	backend *PopplerBackend
	dir     string
	path    string
	pages   int
}

func (d *popplerDoc) PageCount() int { return d.pages }

func (d *popplerDoc) PageText(ctx context.Context, page int) (string, error) {
	n := strconv.Itoa(page)
	// pdftotext -f n -l n -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := d.backend.runner.Run(ctx, d.backend.cfg.Pdftotext,
		"-f", n, "-l", n, "-layout", "-enc", "UTF-8", "-eol", "unix", d.path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	return string(out), nil
}

func (d *popplerDoc) RenderPage(ctx context.Context, page, scale int) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	n := strconv.Itoa(page)
	prefix := filepath.Join(d.dir, "page-"+n)
	// 72 dpi is 1x
	_, errb, err := d.backend.runner.Run(ctx, d.backend.cfg.Pdftoppm,
		"-f", n, "-l", n, "-r", strconv.Itoa(72*scale), "-png", "-singlefile", d.path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d produced no image: %w", page, err)
	}
	_ = os.Remove(prefix + ".png")
	return img, nil
}

func (d *popplerDoc) Close() error {
	return os.RemoveAll(d.dir)
}
