package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joseph-ayodele/medical-lab/internal/async"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/export"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
	"github.com/joseph-ayodele/medical-lab/internal/llm/openai"
	"github.com/joseph-ayodele/medical-lab/internal/llm/vertex"
	"github.com/joseph-ayodele/medical-lab/internal/ocr"
	"github.com/joseph-ayodele/medical-lab/internal/ocr/cloudvision"
	"github.com/joseph-ayodele/medical-lab/internal/ocr/tesseract"
	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
	"github.com/joseph-ayodele/medical-lab/internal/server"
)

// app holds everything a command needs; Close releases it in reverse order.
type app struct {
	stores    server.Stores
	engine    *ocr.LazyEngine
	vertex    *vertex.Client
	extractor *ocr.Extractor
	queue     *async.WorkerQueue
	pipeline  *pipeline.Pipeline
	exporter  *export.Service
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{engine: buildEngine(cfg.OCR, logger)}

	var vision llm.VisionClient
	switch v := cfg.Vision; {
	case !v.Available():
		logger.Info("vision fallback disabled", "provider", v.Provider)
	case v.Provider == "vertex":
		vc, err := vertex.NewClient(ctx, vertex.Config{
			ProjectID: v.ProjectID,
			Region:    v.Region,
			Model:     v.Model,
			Timeout:   v.Timeout,
		}, logger)
		if err != nil {
			logger.Warn("vertex client unavailable, continuing without vision fallback", "error", err)
			break
		}
		a.vertex = vc
		vision = vc
	default:
		vision = openai.NewClient(openai.Config{
			APIKey:  v.APIKey,
			BaseURL: v.BaseURL,
			Model:   v.Model,
			Timeout: v.Timeout,
		}, logger)
	}

	a.extractor = ocr.NewExtractor(ocr.Config{
		MaxImageDimension: cfg.OCR.MaxImageDimension,
		OCRTimeout:        cfg.OCR.Timeout,
		PDFRasterScale:    cfg.OCR.PDFRasterScale,
		PDFConcurrency:    cfg.OCR.PDFConcurrency,
	}, a.engine, vision, nil, logger)

	stores, err := server.ConnectStores(ctx, cfg.Store, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.stores = stores

	// no job deadline: a long scan is bounded per OCR and vision call, not as a whole
	a.queue = async.NewWorkerQueue(logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
	)

	a.pipeline = pipeline.New(stores.Primary, stores.Fallback, a.extractor, logger, pipeline.WithRunner(a.queue))
	a.exporter = export.NewService(a.pipeline, logger)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.queue != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		a.queue.Shutdown(sctx)
		cancel()
	}
	a.stores.Close()
	if a.vertex != nil {
		_ = a.vertex.Close()
	}
	if a.engine != nil {
		_ = a.engine.Close()
	}
}

func buildEngine(c common.OCRConfig, logger *slog.Logger) *ocr.LazyEngine {
	switch c.Engine {
	case "tesseract":
		// gosseract clients are not reentrant
		return ocr.NewLazyEngine("tesseract", tesseract.Factory(tesseract.Config{
			Language:    c.Language,
			TessdataDir: c.TessdataDir,
		}), 1, logger)
	case "cloudvision":
		var hints []string
		if c.Language == "eng" {
			hints = []string{"en"}
		}
		return ocr.NewLazyEngine("cloudvision", cloudvision.Factory(hints...), 8, logger)
	default:
		cli := ocr.NewCLIEngine(ocr.CLIConfig{
			Language:    c.Language,
			TessdataDir: c.TessdataDir,
			PSM:         6,
		}, ocr.NewExecRunner(logger))
		return ocr.NewLazyEngine("tesseract", func(context.Context) (ocr.Engine, error) {
			return cli, nil
		}, runtime.NumCPU(), logger)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
