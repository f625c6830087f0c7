package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newrality/transcribe/cmd/server/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvokerRun(t *testing.T) {
	t.Run("joins trimmed segment texts with single spaces", func(t *testing.T) {
		mock := engine.NewMock()
		mock.Segments = []engine.Segment{
			{ID: 0, Start: 0, End: 1.2, Text: "  Hello "},
			{ID: 1, Start: 1.2, End: 2.8, Text: " world"},
			{ID: 2, Start: 2.8, End: 4.0, Text: "again  "},
		}
		mock.Language = "en"

		inv := NewInvoker(1, discardLogger())
		result, err := inv.Run(context.Background(), mock, "/tmp/a.wav", engine.Options{Language: "it"}, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if result.Text != "Hello world again" {
			t.Errorf("Text = %q, want %q", result.Text, "Hello world again")
		}
		if result.Segments != nil {
			t.Errorf("Segments = %v, want nil when not requested", result.Segments)
		}
	})

	t.Run("records segments in arrival order when requested", func(t *testing.T) {
		mock := engine.NewMock()
		mock.Segments = []engine.Segment{
			{ID: 0, Start: 0, End: 1, Text: " one "},
			{ID: 1, Start: 1, End: 2, Text: " two "},
			{ID: 2, Start: 2, End: 3, Text: " three "},
		}

		inv := NewInvoker(1, discardLogger())
		result, err := inv.Run(context.Background(), mock, "/tmp/a.wav", engine.Options{}, true)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if len(result.Segments) != 3 {
			t.Fatalf("len(Segments) = %d, want 3", len(result.Segments))
		}
		want := []string{"one", "two", "three"}
		for i, seg := range result.Segments {
			if seg.Text != want[i] {
				t.Errorf("Segments[%d].Text = %q, want %q", i, seg.Text, want[i])
			}
			if seg.ID != i {
				t.Errorf("Segments[%d].ID = %d, want %d", i, seg.ID, i)
			}
		}
	})

	t.Run("empty segment stream yields empty transcript", func(t *testing.T) {
		inv := NewInvoker(1, discardLogger())
		result, err := inv.Run(context.Background(), engine.NewMock(), "/tmp/a.wav", engine.Options{Language: "it"}, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Text != "" {
			t.Errorf("Text = %q, want empty", result.Text)
		}
	})

	t.Run("detected language wins over input language", func(t *testing.T) {
		mock := engine.NewMock()
		mock.Language = "en"

		inv := NewInvoker(1, discardLogger())
		result, err := inv.Run(context.Background(), mock, "/tmp/a.wav", engine.Options{Language: "it"}, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Language != "en" {
			t.Errorf("Language = %q, want %q (engine-detected)", result.Language, "en")
		}
	})

	t.Run("falls back to input language when engine reports none", func(t *testing.T) {
		inv := NewInvoker(1, discardLogger())
		result, err := inv.Run(context.Background(), engine.NewMock(), "/tmp/a.wav", engine.Options{Language: "it"}, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Language != "it" {
			t.Errorf("Language = %q, want %q", result.Language, "it")
		}
	})

	t.Run("engine failure is classified as inference error", func(t *testing.T) {
		mock := engine.NewMock()
		mock.Err = errors.New("decoder crashed")

		inv := NewInvoker(1, discardLogger())
		_, err := inv.Run(context.Background(), mock, "/tmp/a.wav", engine.Options{}, false)

		var classified *Error
		if !errors.As(err, &classified) {
			t.Fatalf("error = %v, want classified Error", err)
		}
		if classified.Code != INFERENCE_ERROR {
			t.Errorf("Code = %s, want %s", classified.Code, INFERENCE_ERROR)
		}
	})
}

// slowEngine tracks how many Transcribe calls overlap.
type slowEngine struct {
	inFlight    int32
	maxInFlight int32
}

func (s *slowEngine) Transcribe(ctx context.Context, audioPath string, opts engine.Options) (*engine.Output, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	return &engine.Output{Segments: []engine.Segment{}}, nil
}

func (s *slowEngine) HealthCheck(ctx context.Context) (bool, error) { return true, nil }
func (s *slowEngine) Name() string                                  { return "slow" }

func TestInvokerSerializesEngineAccess(t *testing.T) {
	eng := &slowEngine{}
	inv := NewInvoker(1, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = inv.Run(context.Background(), eng, "/tmp/a.wav", engine.Options{}, false)
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&eng.maxInFlight); max > 1 {
		t.Errorf("max concurrent engine invocations = %d, want 1", max)
	}
}
