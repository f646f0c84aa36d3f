// Package log records run output on disk: per-block snapshots as
// compressed JSONL, and final results as plain JSON. The JSONL files
// are the source of truth for replay; the sqlite index is derived.
package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		if err := w.openLocked(); err != nil {
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

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
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
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
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

// HistoryLogger writes one JSONL entry per block (compressed).
type HistoryLogger struct{ w *JSONLZstdWriter }

func NewHistoryLogger(runDir string) *HistoryLogger {
	return &HistoryLogger{w: NewJSONLZstdWriter(HistoryPath(runDir))}
}

func (l *HistoryLogger) WriteBlock(snap engine.BlockSnapshot) error { return l.w.Write(snap) }
func (l *HistoryLogger) Close() error                               { return l.w.Close() }

func HistoryPath(runDir string) string {
	return filepath.Join(runDir, "history.jsonl.zst")
}

// WriteResults stores the final results of a run as plain JSON next to
// its history file.
func WriteResults(runDir string, res engine.Results) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "results.json"), append(b, '\n'), 0o644)
}
