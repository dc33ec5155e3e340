package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyPatientID contextKey = "patient_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithPatientID adds a patient ID to the context
func WithPatientID(ctx context.Context, patientID string) context.Context {
	return context.WithValue(ctx, ContextKeyPatientID, patientID)
}

// PatientIDFromContext extracts the patient ID from context
func PatientIDFromContext(ctx context.Context) string {
	if patientID, ok := ctx.Value(ContextKeyPatientID).(string); ok {
		return patientID
	}
	return ""
}

// LoggerFrom decorates logger with the request and patient ids carried by ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		logger = logger.With("request_id", rid)
	}
	if pid := PatientIDFromContext(ctx); pid != "" {
		logger = logger.With("patient_id", pid)
	}
	return logger
}
