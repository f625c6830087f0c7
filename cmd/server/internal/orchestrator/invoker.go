package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/newrality/transcribe/cmd/server/internal/engine"
	"github.com/newrality/transcribe/cmd/server/internal/metrics"
)

// Invoker wraps one engine invocation: it serializes access to the engine,
// consumes the segment stream, and assembles the result. Whisper backends
// are not proven reentrant-safe, so the default capacity is 1; deployments
// whose engine documents concurrent reads can raise it.
type Invoker struct {
	sem *semaphore.Weighted
	log *slog.Logger
}

// NewInvoker creates an Invoker admitting at most maxConcurrent engine
// invocations at a time.
func NewInvoker(maxConcurrent int, log *slog.Logger) *Invoker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Invoker{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		log: log,
	}
}

// Run transcribes the audio file at path with the already-resolved options.
// The reported duration covers the engine call only, not queueing or
// ingestion. The engine's segment stream is consumed in a single forward
// pass: each text is whitespace-trimmed and appended to the transcript,
// and recorded individually only when includeSegments is set. An empty
// stream yields an empty transcript, not an error.
func (v *Invoker) Run(ctx context.Context, eng engine.Engine, path string, opts engine.Options, includeSegments bool) (*Result, error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return nil, NewInferenceError(err)
	}
	defer v.sem.Release(1)

	start := time.Now()
	out, err := eng.Transcribe(ctx, path, opts)
	elapsed := time.Since(start)
	metrics.InferenceDuration.Observe(elapsed.Seconds())

	if err != nil {
		v.log.Error("engine invocation failed", "engine", eng.Name(), "error", err, "elapsed", elapsed)
		return nil, NewInferenceError(err)
	}

	parts := make([]string, 0, len(out.Segments))
	var segments []engine.Segment
	if includeSegments {
		segments = make([]engine.Segment, 0, len(out.Segments))
	}

	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		parts = append(parts, text)
		if includeSegments {
			segments = append(segments, engine.Segment{
				ID:    seg.ID,
				Start: seg.Start,
				End:   seg.End,
				Text:  text,
			})
		}
	}

	// The engine may report no language (silent clip, backend limitation);
	// fall back to the language the invocation was asked for.
	language := out.Language
	if language == "" {
		language = opts.Language
	}

	return &Result{
		Text:     strings.Join(parts, " "),
		Language: language,
		Duration: elapsed.Seconds(),
		Segments: segments,
	}, nil
}
