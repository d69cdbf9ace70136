package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"civilizace.org/internal/entities"
)

// AuditEntry is one line in the audit trail: every phase transition of every
// action, with enough context to reconstruct what an org did and when.
type AuditEntry struct {
	At       string            `json:"at"`
	ActionID string            `json:"action_id"`
	Type     string            `json:"type"`
	Team     entities.EntityID `json:"team"`
	Phase    string            `json:"phase"`
	Expected bool              `json:"expected"`
	Message  string            `json:"message,omitempty"`
}

type jsonlZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newJSONLZstdWriter(baseDir, prefix string) *jsonlZstdWriter {
	return &jsonlZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *jsonlZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *jsonlZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *jsonlZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *jsonlZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// AuditLogger writes compressed audit JSONL, rotated hourly.
type AuditLogger struct{ w *jsonlZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: newJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e AuditEntry) error { return l.w.Write(e) }
func (l *AuditLogger) Close() error                  { return l.w.Close() }
