package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrality/transcribe/cmd/server/internal/config"
	"github.com/newrality/transcribe/cmd/server/internal/engine"
	"github.com/newrality/transcribe/cmd/server/internal/lifecycle"
	"github.com/newrality/transcribe/cmd/server/internal/middleware"
	"github.com/newrality/transcribe/cmd/server/internal/orchestrator"
	"github.com/newrality/transcribe/cmd/server/internal/upload"
	"github.com/newrality/transcribe/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(tempDir string) *config.Config {
	return &config.Config{
		Whisper: config.WhisperConfig{
			Model:       "small",
			Mode:        "mock",
			Device:      "cpu",
			LoadTimeout: time.Second,
		},
		Transcription: config.TranscriptionConfig{
			DefaultLanguage:    "it",
			DefaultTemperature: 0.0,
			DefaultBeamSize:    5,
			EnableVADFilter:    true,
			MaxConcurrent:      1,
		},
		Upload: config.UploadConfig{
			MaxFileSizeMB:  1,
			AllowedFormats: []string{"mp3", "wav"},
			TempDir:        tempDir,
		},
	}
}

// newTestRouter wires the transcribe route around the given builder, the
// same way main does, minus auth.
func newTestRouter(t *testing.T, cfg *config.Config, build lifecycle.Builder) *gin.Engine {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	manager := lifecycle.NewManager(build, log)
	ingester := upload.NewIngester(cfg.Upload.TempDir, cfg.Upload.MaxFileSizeBytes(), cfg.Upload.AllowedFormats)
	invoker := orchestrator.NewInvoker(cfg.Transcription.MaxConcurrent, log)
	orch := orchestrator.New(cfg, ingester, manager, invoker, log)

	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.POST("/api/v1/transcribe", HandleTranscribe(orch, nil))
	return router
}

func multipartRequest(t *testing.T, target, filename string, payload []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func mockBuilder(mock engine.Engine) lifecycle.Builder {
	return func(ctx context.Context) (engine.Engine, error) {
		return mock, nil
	}
}

func TestHandleTranscribeSuccess(t *testing.T) {
	mock := engine.NewMock()
	mock.Segments = []engine.Segment{
		{ID: 0, Start: 0, End: 2, Text: " Buongiorno"},
		{ID: 1, Start: 2, End: 4, Text: " a tutti"},
	}
	mock.Language = "it"

	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(mock))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe", "sample.mp3", []byte("fake audio data")))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Buongiorno a tutti", result.Text)
	assert.Equal(t, "it", result.Language)
	assert.Empty(t, result.Segments)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleTranscribeIncludeSegments(t *testing.T) {
	mock := engine.NewMock()
	mock.Segments = []engine.Segment{
		{ID: 0, Start: 0, End: 1.5, Text: " hello"},
	}

	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(mock))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe?include_segments=true", "sample.wav", []byte("fake audio data")))

	require.Equal(t, http.StatusOK, w.Code)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Segments, 1)
	assert.Equal(t, "hello", result.Segments[0].Text)
	assert.Equal(t, 1.5, result.Segments[0].End)
}

func TestHandleTranscribeUnsupportedFormat(t *testing.T) {
	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(engine.NewMock()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe", "document.pdf", []byte("%PDF-")))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNSUPPORTED_FORMAT", resp.Error)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandleTranscribeFileTooLarge(t *testing.T) {
	cfg := testConfig(t.TempDir()) // 1 MB limit
	router := newTestRouter(t, cfg, mockBuilder(engine.NewMock()))

	payload := bytes.Repeat([]byte{0x01}, 2*1024*1024)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe", "big.mp3", payload))

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FILE_TOO_LARGE", resp.Error)
}

func TestHandleTranscribeModelUnavailable(t *testing.T) {
	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, func(ctx context.Context) (engine.Engine, error) {
		return nil, errors.New("cuda out of memory")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe", "sample.mp3", []byte("fake audio data")))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "MODEL_UNAVAILABLE", resp.Error)
	assert.Contains(t, resp.Detail, "cuda out of memory")
}

func TestHandleTranscribeInferenceError(t *testing.T) {
	mock := engine.NewMock()
	mock.Err = errors.New("decoder blew up")

	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(mock))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe", "sample.mp3", []byte("fake audio data")))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INFERENCE_ERROR", resp.Error)
}

func TestHandleTranscribeMissingFile(t *testing.T) {
	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(engine.NewMock()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_PARAMETER", resp.Error)
}

func TestHandleTranscribeParamValidation(t *testing.T) {
	cfg := testConfig(t.TempDir())
	router := newTestRouter(t, cfg, mockBuilder(engine.NewMock()))

	tests := []struct {
		name  string
		query string
	}{
		{"temperature above range", "?temperature=1.5"},
		{"temperature below range", "?temperature=-0.1"},
		{"beam_size zero", "?beam_size=0"},
		{"beam_size above range", "?beam_size=11"},
		{"temperature not a number", "?temperature=hot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, "/api/v1/transcribe"+tt.query, "sample.mp3", []byte("x")))

			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_PARAMETER", resp.Error)
		})
	}
}
