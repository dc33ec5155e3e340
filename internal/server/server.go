package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

// BasePath prefixes every route.
const BasePath = "/api/medical-lab"

// DefaultMaxUploadBytes bounds multipart and JSON request bodies.
const DefaultMaxUploadBytes = 50 << 20

// Pipeline is the part of *pipeline.Pipeline the handlers use.
type Pipeline interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResponse, error)
	IngestBase64(ctx context.Context, payload, filename string) (entity.ExtractionResult, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]entity.StoredDocument, constants.StorageType, error)
	GetByID(ctx context.Context, id string, includePayload bool) (*entity.StoredDocument, constants.StorageType, error)
	Delete(ctx context.Context, id string) (bool, error)
	Reprocess(ctx context.Context, id string) (*entity.ExtractionResult, constants.StorageType, error)
	Status(ctx context.Context) pipeline.Status
}

// Exporter is satisfied by *export.Service.
type Exporter interface {
	ExportPatientXLSX(ctx context.Context, patientID string, from, to *time.Time) ([]byte, error)
}

type Server struct {
	pipeline       Pipeline
	exporter       Exporter
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewServer(p Pipeline, exp Exporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipeline: p, exporter: exp, logger: logger, maxUploadBytes: DefaultMaxUploadBytes}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+BasePath+"/upload", s.HandleUpload)
	mux.HandleFunc("POST "+BasePath+"/ocr-base64", s.HandleOCRBase64)
	mux.HandleFunc("GET "+BasePath+"/patients/{patient_id}/documents", s.HandleListDocuments)
	mux.HandleFunc("GET "+BasePath+"/patients/{patient_id}/export.xlsx", s.HandleExport)
	mux.HandleFunc("GET "+BasePath+"/documents/{id}", s.HandleGetDocument)
	mux.HandleFunc("DELETE "+BasePath+"/documents/{id}", s.HandleDeleteDocument)
	mux.HandleFunc("POST "+BasePath+"/documents/{id}/reprocess", s.HandleReprocess)
	mux.HandleFunc("GET "+BasePath+"/health", s.HandleHealth)
	return s.recoverer(s.requestLogger(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// requestLogger assigns a request id (or keeps X-Request-ID) and logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := common.WithRequestID(r.Context(), rid)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "http.request",
			"request_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("http.panic", "path", r.URL.Path, "panic", v)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
