package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ServerEngine talks to a whisper-server sidecar over HTTP. Requests are
// multipart/form-data posts to /api/whisper/transcribe; responses are JSON
// with segments, text and detected language.
type ServerEngine struct {
	apiURL     string
	model      string
	httpClient *http.Client
}

// NewServerEngine creates a ServerEngine for the given base URL and model
// name. The HTTP client timeout is generous because transcription time
// grows with audio length.
func NewServerEngine(apiURL, model string) *ServerEngine {
	return &ServerEngine{
		apiURL: apiURL,
		model:  model,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

type serverResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

// Transcribe uploads the audio file and decodes the JSON response.
func (s *ServerEngine) Transcribe(ctx context.Context, audioPath string, opts Options) (*Output, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	fields := map[string]string{
		"model":           s.model,
		"response_format": "json",
		"temperature":     strconv.FormatFloat(opts.Temperature, 'f', 1, 64),
		"beam_size":       strconv.Itoa(opts.BeamSize),
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	if opts.VADFilter {
		fields["vad_filter"] = "true"
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := s.apiURL + "/api/whisper/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed serverResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	out := &Output{
		Segments: parsed.Segments,
		Language: parsed.Language,
	}
	if out.Segments == nil {
		out.Segments = []Segment{}
	}
	return out, nil
}

// HealthCheck probes the sidecar's health endpoint.
func (s *ServerEngine) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("whisper server health returned status %d", resp.StatusCode)
	}
	return true, nil
}

// Name identifies this backend.
func (s *ServerEngine) Name() string {
	return "whisper-server"
}
