// Package audit writes the command audit trail of the Drone Control
// Gateway as JSON lines, one entry per command action, with size-based
// rotation.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	DroneID   string    `json:"droneId"`
	Operator  string    `json:"operator"`
	CommandID int64     `json:"commandId,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latencyMs"`
}

// Logger appends audit entries to a rotating JSONL file.
type Logger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewLogger creates an audit logger writing to <dir>/audit.jsonl.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &Logger{
		w: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "audit.jsonl"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		},
	}, nil
}

// LogAction records one command action. Audit failures are reported on
// stderr and never propagate into command handling.
func (l *Logger) LogAction(action, droneID, operatorID string, commandID int64, outcome string, latency time.Duration) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		DroneID:   droneID,
		Operator:  operatorID,
		CommandID: commandID,
		Outcome:   outcome,
		LatencyMs: latency.Milliseconds(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write audit entry: %v\n", err)
	}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
