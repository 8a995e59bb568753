package trace

import (
	"errors"
	"os"
	"testing"

	"github.com/talgya/evacsim/internal/engine"
)

func frame(run string, tick uint64, n int) engine.Frame {
	fr := engine.Frame{RunID: run, Tick: tick, Time: float64(tick) / 30}
	for i := 0; i < n; i++ {
		fr.Agents = append(fr.Agents, engine.AgentFrame{ID: 1, State: "working", X: float64(i)})
	}
	return fr
}

func TestWriter_OneFilePerRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	for tick := uint64(1); tick <= 3; tick++ {
		if err := w.Write(frame("run-a", tick, 2)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Write(frame("run-b", 1, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Frames() != 1 {
		t.Fatalf("frames=%d want=1 after rotation", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var ticks []uint64
	err := ReadFrames(w.Path("run-a"), func(fr engine.Frame) error {
		if fr.RunID != "run-a" || len(fr.Agents) != 2 {
			t.Fatalf("frame=%+v", fr)
		}
		ticks = append(ticks, fr.Tick)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(ticks) != 3 || ticks[0] != 1 || ticks[2] != 3 {
		t.Fatalf("ticks=%v", ticks)
	}
	if _, err := os.Stat(w.Path("run-b")); err != nil {
		t.Fatalf("second run file: %v", err)
	}
}

func TestReadFrames_StopsOnCallbackError(t *testing.T) {
	w := NewWriter(t.TempDir())
	for tick := uint64(1); tick <= 5; tick++ {
		if err := w.Write(frame("r", tick, 0)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	w.Close()

	stop := errors.New("stop")
	seen := 0
	err := ReadFrames(w.Path("r"), func(engine.Frame) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 2 {
		t.Fatalf("err=%v seen=%d", err, seen)
	}
}

func TestWriter_RejectsMissingRunID(t *testing.T) {
	w := NewWriter(t.TempDir())
	defer w.Close()
	if err := w.Write(engine.Frame{Tick: 1}); err == nil {
		t.Fatalf("expected error for frame without run id")
	}
}
