package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
)

type Config struct {
	MaxImageDimension int           // default 2048
	OCRTimeout        time.Duration // default 120s
	PDFRasterScale    int           // default 2
	PDFConcurrency    int           // default 4
	MaxPages          int           // 0 = no limit

	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
}

// Route is the dispatcher's decision for one file.
type Route struct {
	Kind     constants.Kind
	FileType constants.FileType
	Ext      string
}

// Extractor dispatches a file to the text, PDF or image path and normalizes the result.
type Extractor struct {
	images *ImageOCR
	pdf    *PDFExtractor
	logger *slog.Logger
}

// NewExtractor wires the extractors. engine and vision may be nil; a nil
// backend means poppler binaries from PATH.
func NewExtractor(cfg Config, engine Engine, vision llm.VisionClient, backend PDFBackend, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = NewPopplerBackend(PopplerConfig{Pdftotext: cfg.Pdftotext, Pdftoppm: cfg.Pdftoppm}, NewExecRunner(logger), logger)
	}
	images := NewImageOCR(ImageConfig{MaxDimension: cfg.MaxImageDimension, Timeout: cfg.OCRTimeout}, engine, vision, logger)
	pdf := NewPDFExtractor(PDFConfig{RasterScale: cfg.PDFRasterScale, Concurrency: cfg.PDFConcurrency, MaxPages: cfg.MaxPages}, backend, images, logger)
	return &Extractor{images: images, pdf: pdf, logger: logger}
}

func (e *Extractor) Images() *ImageOCR { return e.images }

func (e *Extractor) EngineName() string { return e.images.EngineName() }

func (e *Extractor) VisionAvailable() bool { return e.images.VisionAvailable() }

// Route picks the extractor from the extension, accepting the declared MIME
// when it is allow-listed or carries no information.
func (e *Extractor) Route(mimeType, filename string) (Route, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	kind := constants.KindForExt(ext)
	mimeKind := constants.KindForMIME(mimeType)
	generic := constants.IsGenericMIME(mimeType)

	switch {
	case kind != constants.KindUnknown && (mimeKind != constants.KindUnknown || generic):
	case kind == constants.KindUnknown && mimeKind != constants.KindUnknown:
		kind = mimeKind
		ext = extForMIME(mimeType)
	default:
		return Route{}, common.NewAppError(common.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q (mime %q); supported: %s",
				filepath.Ext(filename), mimeType, strings.Join(constants.SupportedExtensions(), ", ")),
			common.ErrUnsupportedFormat)
	}
	return Route{Kind: kind, FileType: constants.FileTypeForExt(ext, kind), Ext: ext}, nil
}

// Extract validates, routes and normalizes. It never returns an error:
// failures are reported in the result.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (res entity.ExtractionResult) {
	start := time.Now()
	route, err := e.Route(mimeType, filename)
	if err != nil {
		e.logger.Warn("ocr.dispatch.unsupported", "filename", filename, "mime", mimeType)
		res = entity.Failure(filename, "", entity.ErrorKindUnsupportedFormat, err.Error())
		res.SupportedTypes = constants.SupportedExtensions()
		return res
	}
	if constants.IsGenericMIME(mimeType) && len(data) > 0 {
		e.checkSniffed(data, filename, route)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ocr.dispatch.panic", "filename", filename, "panic", r)
			res = entity.Failure(filename, route.FileType, entity.ErrorKindDecode, fmt.Sprintf("extraction panic: %v", r))
		}
		res.ProcessingTime = time.Since(start).Seconds()
	}()

	e.logger.Debug("ocr.dispatch", "filename", filename, "kind", route.Kind, "file_type", route.FileType)
	switch route.Kind {
	case constants.KindPDF:
		res = e.pdf.Extract(ctx, data, filename)
	case constants.KindImage:
		res = e.images.Extract(ctx, data, filename)
	default:
		if route.FileType == constants.DOCX {
			res = ExtractDOCX(data, filename)
		} else {
			res = ExtractTXT(data, filename)
		}
	}
	res.FileType = route.FileType
	return Normalize(res)
}

// ExtractImage runs the image path directly, for callers that already know
// the payload is a raster image.
func (e *Extractor) ExtractImage(ctx context.Context, data []byte, filename string) entity.ExtractionResult {
	start := time.Now()
	res := Normalize(e.images.Extract(ctx, data, filename))
	res.ProcessingTime = time.Since(start).Seconds()
	return res
}

// checkSniffed logs when the content looks like a different kind than the extension says.
func (e *Extractor) checkSniffed(data []byte, filename string, route Route) {
	sniffed := http.DetectContentType(data)
	if k := constants.KindForMIME(sniffed); k != constants.KindUnknown && k != route.Kind {
		e.logger.Warn("ocr.dispatch.content_mismatch", "filename", filename, "kind", route.Kind, "sniffed", sniffed)
	}
}

func extForMIME(m string) string {
	switch constants.BaseMIME(m) {
	case "application/pdf":
		return "pdf"
	case "text/plain":
		return "txt"
	case "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/tiff":
		return "tiff"
	default:
		if strings.HasPrefix(constants.BaseMIME(m), "image/") {
			return strings.TrimPrefix(constants.BaseMIME(m), "image/")
		}
	}
	return ""
}
