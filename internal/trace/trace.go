// Package trace records observed frames as zstd-compressed JSON lines, one
// file per run.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/evacsim/internal/engine"
)

// Writer appends frames to <dir>/<run>.jsonl.zst, switching file whenever the
// run ID changes.
type Writer struct {
	dir string

	mu     sync.Mutex
	curRun string
	frames int
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewWriter writes trace files under dir. Nothing is created until the
// first frame arrives.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the trace file of a run.
func (w *Writer) Path(runID string) string {
	return filepath.Join(w.dir, runID+".jsonl.zst")
}

// Frames returns how many frames went into the current file.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes and closes the current trace file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends fr to its run's trace, starting a new file when the run changes.
func (w *Writer) Write(fr engine.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if fr.RunID != w.curRun || w.w == nil {
		if err := w.rotateLocked(fr.RunID); err != nil {
			return err
		}
	}

	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.frames++
	return w.w.Flush()
}

func (w *Writer) rotateLocked(runID string) error {
	if runID == "" {
		return fmt.Errorf("trace: frame has no run id")
	}
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.curRun = runID
	w.frames = 0
	return nil
}

func (w *Writer) closeLocked() error {
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

// ReadFrames decodes every frame of a trace file, calling fn in order.
// Returning an error from fn stops the scan.
func ReadFrames(path string, fn func(engine.Frame) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var fr engine.Frame
		if err := json.Unmarshal(sc.Bytes(), &fr); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(fr); err != nil {
			return err
		}
	}
	return sc.Err()
}
