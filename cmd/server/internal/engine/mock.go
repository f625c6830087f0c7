package engine

import (
	"context"
)

// Mock is an in-memory Engine used in tests and in the mock deployment
// mode. It returns canned segments without touching the audio file and can
// be primed to fail.
type Mock struct {
	// Segments are returned verbatim from Transcribe.
	Segments []Segment

	// Language is reported as the detected language; empty simulates an
	// engine that reports none.
	Language string

	// Err, when set, is returned from every Transcribe call.
	Err error

	// Healthy is reported from HealthCheck.
	Healthy bool

	// Calls counts Transcribe invocations.
	Calls int

	// LastOpts records the options of the most recent invocation.
	LastOpts Options
}

// NewMock returns a healthy mock with no segments.
func NewMock() *Mock {
	return &Mock{Healthy: true}
}

// Transcribe returns the canned result.
func (m *Mock) Transcribe(ctx context.Context, audioPath string, opts Options) (*Output, error) {
	m.Calls++
	m.LastOpts = opts
	if m.Err != nil {
		return nil, m.Err
	}
	segments := m.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return &Output{Segments: segments, Language: m.Language}, nil
}

// HealthCheck reports the configured health state.
func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	return m.Healthy, nil
}

// Name identifies this backend.
func (m *Mock) Name() string {
	return "mock"
}
