// Package api contains the Gin handlers of the transcribe service and the
// mapping from classified pipeline errors to HTTP outcomes.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newrality/transcribe/cmd/server/internal/middleware"
	"github.com/newrality/transcribe/cmd/server/internal/orchestrator"
)

// ErrorResponse is the uniform error body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// statusForCode maps each error code to exactly one HTTP status.
func statusForCode(code orchestrator.ErrorCode) int {
	switch code {
	case orchestrator.UNSUPPORTED_FORMAT:
		return http.StatusBadRequest
	case orchestrator.FILE_TOO_LARGE:
		return http.StatusRequestEntityTooLarge
	case orchestrator.MODEL_UNAVAILABLE:
		return http.StatusServiceUnavailable
	case orchestrator.STORAGE_ERROR, orchestrator.INFERENCE_ERROR:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Classified errors keep their
// code and message; anything else becomes an opaque internal error.
// MODEL_UNAVAILABLE responses carry a Retry-After hint because the model
// may simply still be warming up.
func writeError(c *gin.Context, err error) {
	var classified *orchestrator.Error
	if errors.As(err, &classified) {
		if classified.Code == orchestrator.MODEL_UNAVAILABLE {
			c.Header("Retry-After", "30")
		}
		c.JSON(statusForCode(classified.Code), ErrorResponse{
			Error:     string(classified.Code),
			Detail:    classified.Message,
			RequestID: middleware.RequestID(c),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     "INTERNAL_ERROR",
		Detail:    "unexpected error",
		RequestID: middleware.RequestID(c),
	})
}

// writeBadRequest renders a request-validation failure.
func writeBadRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "INVALID_PARAMETER",
		Detail:    detail,
		RequestID: middleware.RequestID(c),
	})
}
