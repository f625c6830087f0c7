// Package audit records one JSON line per transcription request for
// operability and abuse review, on a size/age-rotated log file.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes transcription audit records with automatic rotation.
type Logger struct {
	logger *log.Logger
}

// NewLogger creates an audit logger writing to logPath. Rotation keeps
// files under 100 MB, at most 10 backups, for 30 days, compressed.
func NewLogger(logPath string) *Logger {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}

	return &Logger{
		logger: log.New(writer, "", 0), // records carry their own timestamp
	}
}

// Entry describes one finished transcription request.
type Entry struct {
	RequestID  string
	Filename   string
	ByteSize   int64
	Status     string // success, rejected, failed
	ErrorCode  string
	DurationMs int64
	SourceIP   string
}

// Record writes the entry as a single JSON line.
func (a *Logger) Record(e Entry) {
	if a == nil {
		return
	}

	record := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  e.RequestID,
		"filename":    e.Filename,
		"byte_size":   e.ByteSize,
		"status":      e.Status,
		"duration_ms": e.DurationMs,
		"source_ip":   e.SourceIP,
	}
	if e.ErrorCode != "" {
		record["error_code"] = e.ErrorCode
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}
