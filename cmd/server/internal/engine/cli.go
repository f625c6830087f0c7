package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CLIEngine invokes a local whisper binary (whisper.cpp style) for each
// transcription. The binary is expected to print one JSON object per
// segment to stdout when asked for JSON output.
type CLIEngine struct {
	programPath string
	modelFile   string
}

// NewCLIEngine validates the binary and model file up front so that
// misconfiguration surfaces at load time rather than on the first request.
func NewCLIEngine(programPath, modelDir, modelFileName string) (*CLIEngine, error) {
	info, err := os.Stat(programPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper program not found: %s", programPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat whisper program: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode())
	}

	modelFile := filepath.Join(modelDir, modelFileName)
	if _, err := os.Stat(modelFile); err != nil {
		return nil, fmt.Errorf("whisper model file not available: %s: %w", modelFile, err)
	}

	return &CLIEngine{
		programPath: programPath,
		modelFile:   modelFile,
	}, nil
}

// Transcribe runs the binary and parses its segment stream. Output is a
// sequence of pretty-printed JSON objects, one per segment, decoded with a
// json.Decoder until EOF.
func (c *CLIEngine) Transcribe(ctx context.Context, audioPath string, opts Options) (*Output, error) {
	args := []string{
		"transcribe", c.modelFile, audioPath,
		"--format", "json",
		"--temperature", strconv.FormatFloat(opts.Temperature, 'f', 1, 64),
		"--beam-size", strconv.Itoa(opts.BeamSize),
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt)
	}
	if opts.VADFilter {
		args = append(args, "--vad")
	}

	cmd := exec.CommandContext(ctx, c.programPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper CLI execution failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := &Output{Segments: []Segment{}}

	decoder := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	for {
		var segment Segment
		if err := decoder.Decode(&segment); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse whisper CLI output: %w", err)
		}
		out.Segments = append(out.Segments, segment)
	}

	// The CLI reports the detected language on stderr as "language: xx".
	for _, line := range strings.Split(stderr.String(), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "language:"); ok {
			out.Language = strings.TrimSpace(rest)
			break
		}
	}

	return out, nil
}

// HealthCheck executes the binary's version subcommand.
func (c *CLIEngine) HealthCheck(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, c.programPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, string(output))
	}
	if len(output) == 0 {
		return false, fmt.Errorf("unexpected empty version output")
	}
	return true, nil
}

// Name identifies this backend.
func (c *CLIEngine) Name() string {
	return "whisper-cli"
}
