// Package orchestrator sequences one transcription request: format
// pre-check, bounded ingestion to transient storage, parameter resolution,
// a bounded wait for engine readiness, the engine invocation, and response
// assembly. The temp artifact is removed on every exit path before the
// result or error reaches the transport layer.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/newrality/transcribe/cmd/server/internal/config"
	"github.com/newrality/transcribe/cmd/server/internal/engine"
	"github.com/newrality/transcribe/cmd/server/internal/lifecycle"
	"github.com/newrality/transcribe/cmd/server/internal/metrics"
	"github.com/newrality/transcribe/cmd/server/internal/upload"
)

// RequestParams are the caller-supplied decoding parameters. Nil pointer
// fields and the empty language are unset and resolve to configuration
// defaults at invocation time.
type RequestParams struct {
	Language        string   `form:"language"`
	Temperature     *float64 `form:"temperature"`
	BeamSize        *int     `form:"beam_size"`
	InitialPrompt   string   `form:"initial_prompt"`
	IncludeSegments bool     `form:"include_segments"`
}

// Result is the immutable outcome of a successful transcription. Duration
// is the wall-clock time of the inference call only.
type Result struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []engine.Segment `json:"segments,omitempty"`
}

// Orchestrator coordinates the per-request pipeline.
type Orchestrator struct {
	ingester    *upload.Ingester
	manager     *lifecycle.Manager
	invoker     *Invoker
	defaults    config.TranscriptionConfig
	loadTimeout time.Duration
	log         *slog.Logger
}

// New wires an Orchestrator from its collaborators.
func New(cfg *config.Config, ingester *upload.Ingester, manager *lifecycle.Manager, invoker *Invoker, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		ingester:    ingester,
		manager:     manager,
		invoker:     invoker,
		defaults:    cfg.Transcription,
		loadTimeout: cfg.Whisper.LoadTimeout,
		log:         log,
	}
}

// Handle runs the full pipeline for one request. Exactly one temp artifact
// exists while the request is in flight and it is deleted before Handle
// returns, whatever the outcome. The first failing stage aborts the
// pipeline and its classified error is returned.
func (o *Orchestrator) Handle(ctx context.Context, src io.Reader, filename string, params RequestParams) (result *Result, err error) {
	defer func() {
		success := err == nil
		metrics.RecordRequest(success)
		if !success {
			var classified *Error
			if errors.As(err, &classified) {
				metrics.RecordError(string(classified.Code))
			}
		}
	}()

	// Fail fast on the filename before reading any byte of the body.
	if ferr := o.ingester.CheckFormat(filename); ferr != nil {
		return nil, NewUnsupportedFormatError(ferr)
	}

	artifact, ierr := o.ingester.Ingest(src, filename)
	if ierr != nil {
		return nil, classifyIngestError(ierr)
	}
	defer o.cleanup(artifact)

	metrics.UploadBytes.Observe(float64(artifact.ByteSize))

	opts := o.resolve(params)

	if werr := o.manager.WaitUntilReady(ctx, o.loadTimeout); werr != nil {
		var notReady *lifecycle.NotReadyError
		if errors.As(werr, &notReady) {
			return nil, NewModelUnavailableError(notReady.Error(), werr)
		}
		return nil, NewModelUnavailableError("model not ready", werr)
	}

	eng := o.manager.Engine()
	return o.invoker.Run(ctx, eng, artifact.Path, opts, params.IncludeSegments)
}

// resolve fills unset request parameters from the configured defaults.
// Resolution happens here, at invocation time, never earlier.
func (o *Orchestrator) resolve(params RequestParams) engine.Options {
	opts := engine.Options{
		Language:    params.Language,
		Temperature: o.defaults.DefaultTemperature,
		BeamSize:    o.defaults.DefaultBeamSize,
		Prompt:      params.InitialPrompt,
		VADFilter:   o.defaults.EnableVADFilter,
	}
	if opts.Language == "" {
		opts.Language = o.defaults.DefaultLanguage
	}
	if params.Temperature != nil {
		opts.Temperature = *params.Temperature
	}
	if params.BeamSize != nil {
		opts.BeamSize = *params.BeamSize
	}
	return opts
}

// cleanup removes the temp artifact. A failure here is logged and counted
// but never propagated: cleanup is advisory and must not mask the primary
// result or error.
func (o *Orchestrator) cleanup(artifact *upload.TempArtifact) {
	if rerr := artifact.Remove(); rerr != nil {
		metrics.CleanupFailuresTotal.Inc()
		o.log.Warn("temp artifact cleanup failed",
			"code", string(CLEANUP_WARNING),
			"path", artifact.Path,
			"error", rerr,
		)
	}
}

func classifyIngestError(err error) *Error {
	var sizeErr *upload.SizeLimitError
	if errors.As(err, &sizeErr) {
		return NewFileTooLargeError(sizeErr.LimitBytes, err)
	}
	var formatErr *upload.FormatError
	if errors.As(err, &formatErr) {
		return NewUnsupportedFormatError(err)
	}
	return NewStorageError(err)
}
