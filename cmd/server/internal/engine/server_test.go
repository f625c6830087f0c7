package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	audioPath := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatalf("failed to create test audio file: %v", err)
	}
	return audioPath
}

func TestServerEngine(t *testing.T) {
	t.Run("successful transcription", func(t *testing.T) {
		var gotFields map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/whisper/transcribe" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			gotFields = map[string]string{}
			for key, values := range r.MultipartForm.Value {
				gotFields[key] = values[0]
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"text": "Hello world",
				"segments": []map[string]interface{}{
					{"id": 0, "text": "Hello", "start": 0.0, "end": 1.2},
					{"id": 1, "text": "world", "start": 1.2, "end": 2.8},
				},
				"language": "en",
				"duration": 2.8,
			})
		}))
		defer server.Close()

		eng := NewServerEngine(server.URL, "small")
		out, err := eng.Transcribe(context.Background(), writeTestAudio(t), Options{
			Language:    "en",
			Temperature: 0.2,
			BeamSize:    5,
			VADFilter:   true,
		})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}

		if len(out.Segments) != 2 {
			t.Errorf("len(Segments) = %d, want 2", len(out.Segments))
		}
		if out.Language != "en" {
			t.Errorf("Language = %q, want %q", out.Language, "en")
		}
		if gotFields["model"] != "small" {
			t.Errorf("model field = %q, want %q", gotFields["model"], "small")
		}
		if gotFields["language"] != "en" {
			t.Errorf("language field = %q, want %q", gotFields["language"], "en")
		}
		if gotFields["beam_size"] != "5" {
			t.Errorf("beam_size field = %q, want %q", gotFields["beam_size"], "5")
		}
		if gotFields["vad_filter"] != "true" {
			t.Errorf("vad_filter field = %q, want %q", gotFields["vad_filter"], "true")
		}
	})

	t.Run("server error status propagates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "internal server error"}`))
		}))
		defer server.Close()

		eng := NewServerEngine(server.URL, "small")
		_, err := eng.Transcribe(context.Background(), writeTestAudio(t), Options{})
		if err == nil {
			t.Error("expected error from server, got nil")
		}
	})

	t.Run("missing audio file", func(t *testing.T) {
		eng := NewServerEngine("http://localhost:1", "small")
		_, err := eng.Transcribe(context.Background(), "/nonexistent/audio.wav", Options{})
		if err == nil {
			t.Error("expected error for missing file, got nil")
		}
	})

	t.Run("health check success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		eng := NewServerEngine(server.URL, "small")
		healthy, err := eng.HealthCheck(context.Background())
		if err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
		if !healthy {
			t.Error("expected healthy status")
		}
	})

	t.Run("health check failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		eng := NewServerEngine(server.URL, "small")
		healthy, err := eng.HealthCheck(context.Background())
		if healthy {
			t.Error("expected unhealthy status")
		}
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}
