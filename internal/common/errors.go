package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeDecode            = "DECODE_ERROR"
	CodeOCRTimeout        = "OCR_PRIMARY_TIMEOUT"
	CodeOCRFailed         = "OCR_PRIMARY_ERROR"
	CodeVisionUnavailable = "VISION_LLM_UNAVAILABLE"
	CodeVisionFailed      = "VISION_LLM_ERROR"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeStoreWrite        = "STORE_WRITE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
)

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecode            = errors.New("decode error")
	ErrOCRTimeout        = errors.New("ocr timeout")
	ErrOCRFailed         = errors.New("ocr failed")
	ErrVisionUnavailable = errors.New("vision llm unavailable")
	ErrVisionFailed      = errors.New("vision llm failed")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrStoreWrite        = errors.New("store write failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func InvalidInputf(format string, args ...any) error {
	return NewAppError(CodeInvalidInput, fmt.Sprintf(format, args...), ErrInvalidInput)
}

func NotFoundf(format string, args ...any) error {
	return NewAppError(CodeNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

// CodeOf returns the AppError code in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
