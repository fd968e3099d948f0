// Package safety provides device filtering and the query audit trail.
package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNilWriter is returned by Log on a logger without a writer.
var ErrNilWriter = errors.New("audit logger: writer is nil")

// Query surfaces recorded in AuditEntry.Surface.
const (
	SurfaceMCP  = "mcp"
	SurfaceHTTP = "http"
)

// AuditEntry is one query against the device data, from either surface.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Surface   string         `json:"surface"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Result    string         `json:"result"`
	Duration  time.Duration  `json:"duration_ns"`
}

// AuditLogger appends entries as JSON lines. It is safe for concurrent use.
type AuditLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewAuditLogger returns an AuditLogger that writes to w, or nil when w is
// nil. Every method tolerates a nil receiver.
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		return nil
	}
	return &AuditLogger{w: w, now: time.Now}
}

// OpenAuditFile opens path for appending, creating it and its parent
// directory if needed. Close releases the file.
func OpenAuditFile(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := NewAuditLogger(f)
	l.closer = f
	return l, nil
}

// Log writes entry as one JSON line. An empty Surface is recorded as mcp.
func (l *AuditLogger) Log(entry AuditEntry) error {
	if l == nil || l.w == nil {
		return ErrNilWriter
	}
	if entry.Surface == "" {
		entry.Surface = SurfaceMCP
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}

// Record logs a query that began at start and has just finished. Write
// errors are dropped; a nil logger records nothing.
func (l *AuditLogger) Record(surface, tool string, params map[string]any, result string, start time.Time) {
	if l == nil {
		return
	}
	_ = l.Log(AuditEntry{
		Timestamp: start,
		Surface:   surface,
		Tool:      tool,
		Params:    params,
		Result:    result,
		Duration:  l.now().Sub(start),
	})
}

// Close closes the underlying file when the logger owns one.
func (l *AuditLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}
