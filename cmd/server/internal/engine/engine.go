// Package engine abstracts the speech-recognition engine behind a small
// interface so the service can run against a whisper-server sidecar, a local
// whisper binary, or a mock. The engine is treated as an opaque decoder:
// audio file in, ordered segments out.
package engine

import (
	"context"
)

// Segment is one contiguous span of transcribed audio as emitted by the
// engine, with start/end offsets in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Output is the raw result of one engine invocation. Language is the
// engine-detected language; it may be empty when the engine reports none.
type Output struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Options carries the decoding parameters for one invocation. All fields
// are already resolved against configuration defaults by the caller; the
// engine never applies defaults of its own.
type Options struct {
	// Language forces decoding in a specific language (ISO 639-1 code).
	// Empty string means auto-detection.
	Language string

	// Temperature is the sampling temperature in [0,1].
	Temperature float64

	// BeamSize is the decoding beam width in [1,10].
	BeamSize int

	// Prompt optionally guides decoding with domain context.
	Prompt string

	// VADFilter toggles voice-activity-detection filtering.
	VADFilter bool
}

// Engine is the contract every transcription backend implements.
//
// Transcribe must respect context cancellation, return an Output with an
// empty Segments slice (not an error) for silent audio, and wrap backend
// failures with context. The segment stream is consumed exactly once in
// emission order.
//
// Implementations are not assumed safe for concurrent Transcribe calls;
// the caller serializes access unless the concrete backend documents
// otherwise.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Output, error)

	// HealthCheck verifies the backend can serve a transcription. It must
	// be cheap (well under ten seconds) and respect the context deadline.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the backend in logs and health reports.
	Name() string
}
