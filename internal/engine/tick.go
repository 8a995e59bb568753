// Package engine provides the tick-based simulation loop, the deferred timer
// scheduler and the Simulation context that owns every subsystem.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward in fixed steps of simulated time.
type Engine struct {
	Tick        uint64        // Current tick counter (monotonic, never resets)
	Dt          float64       // Simulated seconds per tick
	Interval    time.Duration // Wall-clock interval per tick at speed 1
	ReportEvery uint64        // Ticks between OnReport calls (0 = never)

	// Callbacks populated during setup.
	OnTick   func(tick uint64, dt float64) // Every tick
	OnReport func(tick uint64)             // Every ReportEvery ticks

	speed   atomic.Uint64 // float64 bits; 1.0 = real-time, 0 = paused
	running atomic.Bool
}

// NewEngine creates an engine stepping tickRateHz times per simulated second.
func NewEngine(tickRateHz float64) *Engine {
	if tickRateHz <= 0 {
		tickRateHz = 30
	}
	e := &Engine{
		Dt:       1 / tickRateHz,
		Interval: time.Duration(float64(time.Second) / tickRateHz),
	}
	e.SetSpeed(1)
	return e
}

// Speed returns the real-time multiplier.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the real-time multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "dt", e.Dt)

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused. Sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, e.Dt)
	}
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

// SimTime formats simulated seconds as m:ss.t.
func SimTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	tenths := int64(seconds*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}
