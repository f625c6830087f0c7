package orchestrator

import (
	"fmt"
	"time"
)

// ErrorCode classifies transcription request failures. Each code maps to
// exactly one HTTP outcome in the API layer.
type ErrorCode string

const (
	// UNSUPPORTED_FORMAT: filename missing or extension outside the allow-set.
	UNSUPPORTED_FORMAT ErrorCode = "UNSUPPORTED_FORMAT"

	// FILE_TOO_LARGE: upload exceeded the configured byte ceiling.
	FILE_TOO_LARGE ErrorCode = "FILE_TOO_LARGE"

	// STORAGE_ERROR: transient storage I/O failed during ingestion.
	STORAGE_ERROR ErrorCode = "STORAGE_ERROR"

	// MODEL_UNAVAILABLE: engine load failed or has not finished in time.
	MODEL_UNAVAILABLE ErrorCode = "MODEL_UNAVAILABLE"

	// INFERENCE_ERROR: the engine rejected or failed the transcription.
	// Never retried automatically; transient failures are the caller's
	// concern to retry.
	INFERENCE_ERROR ErrorCode = "INFERENCE_ERROR"

	// CLEANUP_WARNING: temp artifact deletion failed. Non-fatal, recorded
	// for operability only and never surfaced as the request outcome.
	CLEANUP_WARNING ErrorCode = "CLEANUP_WARNING"
)

// Error is a classified transcription failure.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap supports error chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewUnsupportedFormatError reports a rejected filename or extension.
func NewUnsupportedFormatError(cause error) *Error {
	return NewError(UNSUPPORTED_FORMAT, "unsupported audio format", cause)
}

// NewFileTooLargeError reports an upload over the configured limit.
func NewFileTooLargeError(limitBytes int64, cause error) *Error {
	msg := fmt.Sprintf("file too large: maximum size is %d MB", limitBytes/(1024*1024))
	return NewError(FILE_TOO_LARGE, msg, cause)
}

// NewStorageError reports a transient-storage failure during ingestion.
func NewStorageError(cause error) *Error {
	return NewError(STORAGE_ERROR, "failed to store uploaded file", cause)
}

// NewModelUnavailableError reports a model that is not serving. The message
// distinguishes a terminal load failure from a still-warming-up timeout.
func NewModelUnavailableError(message string, cause error) *Error {
	return NewError(MODEL_UNAVAILABLE, message, cause)
}

// NewInferenceError wraps an engine failure.
func NewInferenceError(cause error) *Error {
	return NewError(INFERENCE_ERROR, "transcription failed", cause)
}
