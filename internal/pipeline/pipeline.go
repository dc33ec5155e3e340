package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/ocr"
	"github.com/joseph-ayodele/medical-lab/internal/repository"
)

// Extractor is the part of *ocr.Extractor the pipeline depends on.
type Extractor interface {
	Route(mimeType, filename string) (ocr.Route, error)
	Extract(ctx context.Context, data []byte, mimeType, filename string) entity.ExtractionResult
	ExtractImage(ctx context.Context, data []byte, filename string) entity.ExtractionResult
	EngineName() string
	VisionAvailable() bool
}

// Runner offloads blocking work; *async.WorkerQueue satisfies it.
type Runner interface {
	Do(ctx context.Context, name string, fn func(context.Context) error) error
}

// IngestRequest is one uploaded file.
type IngestRequest struct {
	Data      []byte
	MIMEType  string
	Filename  string
	PatientID string
}

// IngestResponse is the extraction result plus where it was stored.
type IngestResponse struct {
	entity.ExtractionResult
	DocumentID     string                   `json:"document_id,omitempty"`
	PatientID      string                   `json:"patient_id"`
	StorageType    constants.StorageType    `json:"storage_type,omitempty"`
	ProcessingType constants.ProcessingType `json:"processing_type"`
	IsImage        bool                     `json:"is_image"`
}

// Pipeline runs dispatch, extraction, normalization and storage for one file.
// It prefers the primary store and switches to the fallback when the primary
// is disconnected or a write fails.
type Pipeline struct {
	primary   repository.DocumentStore // nil when no primary is configured
	fallback  repository.DocumentStore
	extractor Extractor
	runner    Runner
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Pipeline)

// WithRunner moves extraction onto r instead of the calling goroutine.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(primary, fallback repository.DocumentStore, extractor Extractor, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		primary:   primary,
		fallback:  fallback,
		extractor: extractor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest extracts data and stores it under req.PatientID. An invalid patient
// id is the only error; everything else is reported in the response.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	patientID, err := common.NormalizePatientID(req.PatientID)
	if err != nil {
		return nil, err
	}
	ctx = common.WithPatientID(ctx, patientID)
	logger := common.LoggerFrom(ctx, p.logger)

	route, routeErr := p.extractor.Route(req.MIMEType, req.Filename)
	isImage := routeErr == nil && route.Kind == constants.KindImage
	resp := &IngestResponse{
		PatientID:      patientID,
		ProcessingType: constants.ProcessingTypeStorage,
		IsImage:        isImage,
	}
	if isImage {
		resp.ProcessingType = constants.ProcessingTypeOCR
	}

	logger.Info("pipeline.ingest.start", "filename", req.Filename, "mime", req.MIMEType, "bytes", len(req.Data))
	resp.ExtractionResult = p.extract(ctx, req.Filename, func(ctx context.Context) entity.ExtractionResult {
		return p.extractor.Extract(ctx, req.Data, req.MIMEType, req.Filename)
	})
	if routeErr != nil {
		logger.Warn("pipeline.ingest.rejected", "filename", req.Filename, "error", resp.Error)
		return resp, nil
	}

	doc := p.buildDocument(patientID, req, route, resp.ExtractionResult)
	id, storage, err := p.save(ctx, doc)
	if err != nil {
		logger.Error("pipeline.ingest.store_failed", "filename", req.Filename, "error", err)
		return resp, nil
	}
	resp.DocumentID, resp.StorageType = id, storage
	logger.Info("pipeline.ingest.ok",
		"filename", req.Filename,
		"document_id", id,
		"storage", storage,
		"success", resp.Success,
		"text_count", resp.TextCount,
	)
	return resp, nil
}

func (p *Pipeline) extract(ctx context.Context, name string, fn func(context.Context) entity.ExtractionResult) entity.ExtractionResult {
	if p.runner == nil {
		return fn(ctx)
	}
	done := make(chan entity.ExtractionResult, 1)
	err := p.runner.Do(ctx, name, func(jctx context.Context) error {
		done <- fn(jctx)
		return nil
	})
	select {
	case res := <-done:
		return res
	default:
	}
	if ctx.Err() != nil {
		return entity.Failure(name, "", entity.ErrorKindDecode, "extraction cancelled: "+ctx.Err().Error())
	}
	p.logger.Warn("pipeline.runner.unavailable", "job", name, "error", err)
	return fn(ctx)
}

func (p *Pipeline) buildDocument(patientID string, req IngestRequest, route ocr.Route, res entity.ExtractionResult) *entity.StoredDocument {
	isImage := route.Kind == constants.KindImage
	text, count, elapsed := res.ExtractedText, res.TextCount, res.ProcessingTime

	doc := &entity.StoredDocument{
		PatientID:        patientID,
		DocumentType:     constants.DocumentTypeDocument,
		Filename:         req.Filename,
		FileType:         route.FileType,
		FileSize:         len(req.Data),
		Base64Data:       base64.StdEncoding.EncodeToString(req.Data),
		ExtractedText:    &text,
		TextCount:        &count,
		ConfidenceScore:  res.ConfidenceScore,
		ProcessingTime:   &elapsed,
		ProcessingMethod: constants.ProcessingFileStorage,
		Metadata: entity.DocumentMetadata{
			"upload_timestamp": p.now().Format(time.RFC3339),
			"is_image":         isImage,
			"processing_type":  string(constants.ProcessingTypeStorage),
			"ocr_success":      res.Success,
			"file_extension":   route.Ext,
			"mime_type":        req.MIMEType,
		},
	}
	if isImage {
		doc.DocumentType = constants.DocumentTypeImage
		doc.ProcessingMethod = p.imageMethod(res)
		doc.Metadata["processing_type"] = string(constants.ProcessingTypeOCR)
		doc.OCRResults = res.Results
		if doc.OCRResults == nil {
			doc.OCRResults = []entity.ExtractedRecord{}
		}
	}
	if route.Ext == "" {
		doc.Metadata["file_extension"] = filepath.Ext(req.Filename)
	}
	return doc
}

func (p *Pipeline) imageMethod(res entity.ExtractionResult) constants.ProcessingMethod {
	if res.ProcessingSummary.Method == constants.MethodVisionLLM {
		return constants.ProcessingVisionLLM
	}
	return constants.ProcessingMethodForEngine(p.extractor.EngineName())
}

// IngestBase64 extracts an image sent as base64 or as a data: URL. Nothing is stored.
func (p *Pipeline) IngestBase64(ctx context.Context, payload, filename string) (entity.ExtractionResult, error) {
	data, mimeType, err := DecodeBase64Image(payload)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if filename == "" {
		filename = defaultImageName(mimeType)
	}
	p.logger.Info("pipeline.ingest_base64.start", "filename", filename, "bytes", len(data))
	return p.extract(ctx, filename, func(ctx context.Context) entity.ExtractionResult {
		return p.extractor.ExtractImage(ctx, data, filename)
	}), nil
}

// Reprocess reruns extraction on a stored payload and writes the new results
// back to the store that holds the document.
func (p *Pipeline) Reprocess(ctx context.Context, id string) (*entity.ExtractionResult, constants.StorageType, error) {
	doc, storage, err := p.GetByID(ctx, id, true)
	if err != nil {
		return nil, "", err
	}
	data, err := doc.Payload()
	if err != nil {
		return nil, storage, common.NewAppError(common.CodeDecode, "stored payload is not valid base64", err)
	}
	mimeType, _ := doc.Metadata["mime_type"].(string)
	res := p.extract(ctx, doc.Filename, func(ctx context.Context) entity.ExtractionResult {
		return p.extractor.Extract(ctx, data, mimeType, doc.Filename)
	})

	patch := entity.DocumentPatch{
		ExtractedText:  res.ExtractedText,
		TextCount:      res.TextCount,
		ProcessingTime: res.ProcessingTime,
	}
	if doc.IsImage() {
		patch.OCRResults = res.Results
		if patch.OCRResults == nil {
			patch.OCRResults = []entity.ExtractedRecord{}
		}
	}
	ok, err := p.storeFor(storage).UpdateOCRResults(ctx, id, patch)
	if err != nil {
		return &res, storage, err
	}
	if !ok {
		return &res, storage, common.NotFoundf("document %s", id)
	}
	p.logger.Info("pipeline.reprocess.ok", "document_id", id, "storage", storage, "text_count", res.TextCount)
	return &res, storage, nil
}

// Status is reported by the health endpoints.
type Status struct {
	PrimaryStore       string `json:"primary_store,omitempty"`
	PrimaryConnected   bool   `json:"primary_connected"`
	FallbackPath       string `json:"fallback_path,omitempty"`
	VisionLLMAvailable bool   `json:"vision_llm_available"`
	OCREngine          string `json:"ocr_engine"`
}

func (p *Pipeline) Status(ctx context.Context) Status {
	st := Status{
		VisionLLMAvailable: p.extractor.VisionAvailable(),
		OCREngine:          p.extractor.EngineName(),
	}
	if p.primary != nil {
		st.PrimaryStore = p.primary.Name()
		st.PrimaryConnected = p.primary.Connected(ctx)
	}
	if f, ok := p.fallback.(interface{ Path() string }); ok {
		st.FallbackPath = f.Path()
	}
	return st
}

func defaultImageName(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return "image.jpg"
	case "image/gif":
		return "image.gif"
	case "image/bmp":
		return "image.bmp"
	case "image/tiff":
		return "image.tiff"
	default:
		return "image.png"
	}
}
