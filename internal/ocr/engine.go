package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// Line is one recognized line as reported by an engine.
type Line struct {
	Box        entity.BBox
	Text       string
	Confidence float64 // 0..1
}

// Engine is an on-device or remote OCR model.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img []byte) ([]Line, error)
	Close() error
}

// EngineFactory builds the underlying engine on first use.
type EngineFactory func(ctx context.Context) (Engine, error)

var ErrEngineClosed = errors.New("ocr engine closed")

// LazyEngine is the process-wide engine: built on first Recognize, reused
// afterwards, and released by Close. Calls beyond the concurrency limit wait
// for a slot; the wait counts against the caller's deadline.
type LazyEngine struct {
	name    string
	factory EngineFactory
	logger  *slog.Logger

	sem chan struct{}

	mu     sync.Mutex
	engine Engine
	closed bool
}

// NewLazyEngine wraps factory. concurrency 1 serializes calls for engines that are not reentrant.
func NewLazyEngine(name string, factory EngineFactory, concurrency int, logger *slog.Logger) *LazyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LazyEngine{
		name:    name,
		factory: factory,
		logger:  logger,
		sem:     make(chan struct{}, concurrency),
	}
}

func (l *LazyEngine) Name() string { return l.name }

func (l *LazyEngine) Recognize(ctx context.Context, img []byte) ([]Line, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.recognizeHeld(ctx, img)
}

// acquire waits for a concurrency slot. The returned func frees it.
func (l *LazyEngine) acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recognizeHeld runs the engine; the caller must hold a slot.
func (l *LazyEngine) recognizeHeld(ctx context.Context, img []byte) ([]Line, error) {
	eng, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return eng.Recognize(ctx, img)
}

func (l *LazyEngine) get(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrEngineClosed
	}
	if l.engine != nil {
		return l.engine, nil
	}
	start := time.Now()
	// init outlives the request that triggered it
	eng, err := l.factory(context.WithoutCancel(ctx))
	if err != nil {
		l.logger.Error("ocr.engine.init_failed", "engine", l.name, "error", err)
		return nil, fmt.Errorf("init %s: %w", l.name, err)
	}
	l.logger.Info("ocr.engine.ready", "engine", l.name, "elapsed_ms", time.Since(start).Milliseconds())
	l.engine = eng
	return eng, nil
}

// Close releases the engine; later Recognize calls fail with ErrEngineClosed.
func (l *LazyEngine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}
