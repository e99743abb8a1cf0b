// Package eventlog persists operational records (security decisions,
// reasoning failures, collector crashes) as an append-only NDJSON file under
// the vault's Logs area. Nothing that reaches this log is ever dropped
// silently; an operator can always reconstruct what happened from it.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record kinds.
const (
	KindSecurityDecision = "security_decision"
	KindReasoningFailure = "reasoning_failure"
	KindCollectorCrash   = "collector_crash"
	KindTaskTransition   = "task_transition"
)

// Record is one audit log entry.
type Record struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Timestamp time.Time         `json:"ts"`
	Subject   string            `json:"subject"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Log writes records to an NDJSON file, one JSON object per line.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	logger *slog.Logger
}

// Open creates or appends to the log file at path.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	return &Log{
		file:   file,
		writer: bufio.NewWriter(file),
		logger: logger,
	}, nil
}

// Append writes one record. The ID and timestamp are filled in if unset.
func (l *Log) Append(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	// Flush per record so a crash loses at most the in-flight line.
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush event log: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			l.logger.Warn("failed to flush event log on close", "error", err)
		}
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
