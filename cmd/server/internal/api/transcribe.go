package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newrality/transcribe/cmd/server/internal/audit"
	"github.com/newrality/transcribe/cmd/server/internal/middleware"
	"github.com/newrality/transcribe/cmd/server/internal/orchestrator"
	"github.com/newrality/transcribe/pkg/logger"
)

// HandleTranscribe handles POST /api/v1/transcribe: a multipart file field
// plus optional query parameters {language, temperature, beam_size,
// initial_prompt, include_segments}.
func HandleTranscribe(orch *orchestrator.Orchestrator, auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := middleware.RequestID(c)

		var params orchestrator.RequestParams
		if err := c.ShouldBindQuery(&params); err != nil {
			writeBadRequest(c, fmt.Sprintf("invalid query parameters: %v", err))
			return
		}
		if detail := validateParams(params); detail != "" {
			writeBadRequest(c, detail)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeBadRequest(c, "no file uploaded")
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			writeError(c, fmt.Errorf("failed to open upload: %w", err))
			return
		}
		defer src.Close()

		logger.L().Info("transcription request received",
			"rid", reqID,
			"filename", fileHeader.Filename,
			"declared_size", fileHeader.Size,
			"language", params.Language,
		)

		result, err := orch.Handle(c.Request.Context(), src, fileHeader.Filename, params)

		entry := audit.Entry{
			RequestID:  reqID,
			Filename:   fileHeader.Filename,
			ByteSize:   fileHeader.Size,
			Status:     "success",
			DurationMs: time.Since(start).Milliseconds(),
			SourceIP:   c.ClientIP(),
		}

		if err != nil {
			entry.Status = "failed"
			var classified *orchestrator.Error
			if errors.As(err, &classified) {
				entry.ErrorCode = string(classified.Code)
			}
			auditLog.Record(entry)

			logger.L().Error("transcription request failed", "rid", reqID, "error", err)
			writeError(c, err)
			return
		}

		auditLog.Record(entry)

		logger.L().Info("transcription successful",
			"rid", reqID,
			"duration_seconds", result.Duration,
			"text_length", len(result.Text),
			"language", result.Language,
		)

		c.JSON(http.StatusOK, result)
	}
}

// validateParams enforces the documented parameter ranges. An empty return
// means the parameters are valid.
func validateParams(params orchestrator.RequestParams) string {
	if params.Temperature != nil && (*params.Temperature < 0 || *params.Temperature > 1) {
		return fmt.Sprintf("temperature must be in [0,1], got %g", *params.Temperature)
	}
	if params.BeamSize != nil && (*params.BeamSize < 1 || *params.BeamSize > 10) {
		return fmt.Sprintf("beam_size must be in [1,10], got %d", *params.BeamSize)
	}
	return ""
}
