package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

type PDFConfig struct {
	RasterScale int // default 2
	Concurrency int // pages processed at once, default 4
	MaxPages    int // 0 = no limit
}

// PDFExtractor takes the native text layer of each page when it has one and
// rasterizes + OCRs the page otherwise.
type PDFExtractor struct {
	cfg     PDFConfig
	backend PDFBackend
	images  *ImageOCR
	logger  *slog.Logger
}

func NewPDFExtractor(cfg PDFConfig, backend PDFBackend, images *ImageOCR, logger *slog.Logger) *PDFExtractor {
	if cfg.RasterScale <= 0 {
		cfg.RasterScale = constants.DefaultPDFRasterScale
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{cfg: cfg, backend: backend, images: images, logger: logger}
}

type pageOutcome struct {
	records []entity.ExtractedRecord
	native  bool
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) entity.ExtractionResult {
	start := time.Now()

	doc, err := e.backend.Open(ctx, data)
	if err != nil {
		e.logger.Warn("ocr.pdf.open_failed", "filename", filename, "error", err)
		res := entity.Failure(filename, constants.PDF, entity.ErrorKindDecode, "open pdf: "+err.Error())
		res.ProcessingTime = time.Since(start).Seconds()
		return res
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			e.logger.Warn("ocr.pdf.close_failed", "filename", filename, "error", cerr)
		}
	}()

	total := doc.PageCount()
	pages := total
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		e.logger.Warn("ocr.pdf.page_limit", "filename", filename, "pages", total, "limit", e.cfg.MaxPages)
		pages = e.cfg.MaxPages
	}
	e.logger.Debug("ocr.pdf.start", "filename", filename, "pages", total)

	docName := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	outcomes := make([]pageOutcome, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := 0; i < pages; i++ {
		page := i + 1
		g.Go(func() error {
			outcomes[page-1] = e.page(gctx, doc, page, docName)
			return nil // page failures become ocr_failed records
		})
	}
	_ = g.Wait()

	summary := entity.ProcessingSummary{TotalPages: total}
	records := make([]entity.ExtractedRecord, 0, pages)
	for _, o := range outcomes {
		if o.native {
			summary.NativeTextPages++
		} else {
			summary.OCRPages++
		}
		records = append(records, o.records...)
	}
	summary.MixedProcessing = summary.NativeTextPages > 0 && summary.OCRPages > 0
	switch {
	case summary.OCRPages == 0 && summary.NativeTextPages > 0:
		summary.Method = constants.MethodNative
	case summary.NativeTextPages == 0 && summary.OCRPages > 0:
		summary.Method = constants.MethodOCR
	}

	e.logger.Info("ocr.pdf.ok",
		"filename", filename,
		"pages", total,
		"native_pages", summary.NativeTextPages,
		"ocr_pages", summary.OCRPages,
		"records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entity.ExtractionResult{
		Success:           true,
		Filename:          filename,
		FileType:          constants.PDF,
		TotalPages:        total,
		Results:           records,
		ProcessingSummary: summary,
		ProcessingTime:    time.Since(start).Seconds(),
	}
}

func (e *PDFExtractor) page(ctx context.Context, doc PDFDocument, page int, docName string) pageOutcome {
	text, err := doc.PageText(ctx, page)
	if err != nil {
		e.logger.Warn("ocr.pdf.native_failed", "page", page, "error", err)
	}
	if t := CleanText(text); err == nil && t != "" {
		rec := nativeRecord(t, page)
		return pageOutcome{records: []entity.ExtractedRecord{rec}, native: true}
	}

	img, err := doc.RenderPage(ctx, page, e.cfg.RasterScale)
	if err != nil {
		e.logger.Warn("ocr.pdf.render_failed", "page", page, "error", err)
		return pageOutcome{records: []entity.ExtractedRecord{ocrFailedRecord(page)}}
	}

	res := e.images.Extract(ctx, img, fmt.Sprintf("%s_page_%d", docName, page))
	if len(res.Results) == 0 {
		if res.Error != "" {
			e.logger.Warn("ocr.pdf.page_ocr_failed", "page", page, "error", res.Error)
		}
		return pageOutcome{records: []entity.ExtractedRecord{ocrFailedRecord(page)}}
	}
	out := make([]entity.ExtractedRecord, len(res.Results))
	for i, r := range res.Results {
		r.Locator = page
		out[i] = r
	}
	return pageOutcome{records: out}
}

func ocrFailedRecord(page int) entity.ExtractedRecord {
	return entity.ExtractedRecord{
		Text:    "",
		Method:  constants.MethodOCRFailed,
		Locator: page,
	}
}
