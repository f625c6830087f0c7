// Package upload streams incoming files to transient storage with a hard
// byte ceiling. The source stream is never buffered in memory and the
// declared content length is never trusted: the running byte count decides.
// On any failure the partial file is removed before the error is returned.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// chunkSize is the fixed copy granularity. The size check runs at every
// chunk boundary, so at most one chunk beyond the limit is ever read and
// none of it is retained.
const chunkSize = 8 * 1024

// FormatError reports a filename whose extension is outside the allow-set
// (or a missing filename).
type FormatError struct {
	Filename string
	Ext      string
	Allowed  []string
}

func (e *FormatError) Error() string {
	if e.Filename == "" {
		return "file must have a filename"
	}
	return fmt.Sprintf("unsupported audio format: %q (allowed formats: %s)", e.Ext, strings.Join(e.Allowed, ", "))
}

// SizeLimitError reports an upload that exceeded the configured ceiling.
type SizeLimitError struct {
	LimitBytes int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file too large: maximum size is %d MB", e.LimitBytes/(1024*1024))
}

// TempArtifact is one uploaded file in transient storage. It is owned
// exclusively by the request that created it and must be removed before the
// request's response leaves the handler, on every exit path.
type TempArtifact struct {
	Path     string
	ByteSize int64
}

// Remove deletes the artifact. Deletion is best-effort: the returned error
// is for logging only and must never override the request outcome.
func (a *TempArtifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Ingester writes uploads into a transient-storage directory.
type Ingester struct {
	tempDir        string
	maxBytes       int64
	allowedFormats []string
}

// NewIngester creates an Ingester with the given storage directory, byte
// ceiling and allowed extension set (extensions without leading dots,
// lower-case).
func NewIngester(tempDir string, maxBytes int64, allowedFormats []string) *Ingester {
	return &Ingester{
		tempDir:        tempDir,
		maxBytes:       maxBytes,
		allowedFormats: allowedFormats,
	}
}

// CheckFormat validates the declared filename before any byte is read.
// It returns a *FormatError when the filename is missing or its extension
// is outside the allow-set.
func (g *Ingester) CheckFormat(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return &FormatError{Allowed: g.allowedFormats}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, allowed := range g.allowedFormats {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return &FormatError{Filename: filename, Ext: ext, Allowed: g.allowedFormats}
}

// Ingest validates the filename, then streams src to a collision-free temp
// path in fixed-size chunks. Crossing the byte ceiling aborts immediately
// with a *SizeLimitError; any other I/O failure is wrapped. In both failure
// cases the partial file is deleted before returning. On success the caller
// owns the returned artifact and is responsible for its eventual removal.
func (g *Ingester) Ingest(src io.Reader, filename string) (*TempArtifact, error) {
	if err := g.CheckFormat(filename); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(g.tempDir, fmt.Sprintf("audio_%s%s", uuid.NewString(), strings.ToLower(filepath.Ext(filename))))

	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := g.copyBounded(out, src)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, err
	}

	return &TempArtifact{Path: tempPath, ByteSize: written}, nil
}

func (g *Ingester) copyBounded(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > g.maxBytes {
				return written, &SizeLimitError{LimitBytes: g.maxBytes}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write upload chunk: %w", err)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("failed to read upload stream: %w", readErr)
		}
	}
}
