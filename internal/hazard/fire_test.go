package hazard

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/evacsim/internal/world"
)

// openFloor accepts every point and records carving.
type openFloor struct {
	carved int
	reject bool
}

func (f *openFloor) SampleNavigable(p world.Vec3, _ float64) (world.Vec3, bool) {
	return p, !f.reject
}

func (f *openFloor) Carve(world.Vec3, float64) int {
	f.carved++
	return 1
}

type countingAlarm struct{ calls int }

func (a *countingAlarm) Trigger(world.Vec3) int {
	a.calls++
	return 0
}

func zone() world.Bounds {
	return world.Bounds{Min: world.V(-2, 0, -2), Max: world.V(2, 0, 2)}
}

func TestIgnite_TriggersAlarmOnce(t *testing.T) {
	floor := &openFloor{}
	alarm := &countingAlarm{}
	m := NewModel(DefaultConfig(), []world.Bounds{zone()}, floor, alarm, 1)

	n, err := m.Ignite(0)
	if err != nil {
		t.Fatalf("Ignite: %v", err)
	}
	if !zone().Contains(n.Position) {
		t.Fatalf("ignition %v outside zone", n.Position)
	}
	if _, err := m.Ignite(1); !errors.Is(err, ErrAlreadyIgnited) {
		t.Fatalf("second ignite err=%v want ErrAlreadyIgnited", err)
	}
	if alarm.calls != 1 {
		t.Fatalf("alarm calls=%d want=1", alarm.calls)
	}
	if m.Count() != 1 || floor.carved != 1 {
		t.Fatalf("count=%d carved=%d want 1/1", m.Count(), floor.carved)
	}
}

func TestIgnite_NoZonesIsConfigurationProblem(t *testing.T) {
	alarm := &countingAlarm{}
	m := NewModel(DefaultConfig(), nil, &openFloor{}, alarm, 1)
	if _, err := m.Ignite(0); !errors.Is(err, ErrNoHazardZones) {
		t.Fatalf("err=%v want ErrNoHazardZones", err)
	}
	if m.Ignited() || alarm.calls != 0 || m.Count() != 0 {
		t.Fatalf("failed ignition must have no effect")
	}
}

func TestSpread_NeverExceedsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 7
	m := NewModel(cfg, []world.Bounds{zone()}, &openFloor{}, nil, 3)
	if _, err := m.Ignite(0); err != nil {
		t.Fatalf("Ignite: %v", err)
	}
	for i := 0; i < 500; i++ {
		m.SpreadStep(float64(i))
		if m.Count() > cfg.MaxNodes {
			t.Fatalf("count=%d exceeds cap %d", m.Count(), cfg.MaxNodes)
		}
	}
	if m.Count() != cfg.MaxNodes {
		t.Fatalf("count=%d want=%d on an open floor", m.Count(), cfg.MaxNodes)
	}
}

func TestSpread_StaysLevelAndNearby(t *testing.T) {
	m := NewModel(DefaultConfig(), []world.Bounds{zone()}, &openFloor{}, nil, 9)
	first, _ := m.Ignite(0)
	n, ok := m.SpreadStep(5)
	if !ok {
		t.Fatalf("expected spread on an open floor")
	}
	if n.Position.Y != first.Position.Y {
		t.Fatalf("spread changed elevation: %v vs %v", n.Position.Y, first.Position.Y)
	}
	if d := n.Position.Dist(first.Position); d > DefaultConfig().SpreadRadius {
		t.Fatalf("spread distance=%f beyond radius", d)
	}
}

func TestSpread_RejectsUnnavigable(t *testing.T) {
	floor := &openFloor{}
	m := NewModel(DefaultConfig(), []world.Bounds{zone()}, floor, nil, 2)
	m.Ignite(0)
	floor.reject = true
	if _, ok := m.SpreadStep(5); ok {
		t.Fatalf("spread should fail on unnavigable floor")
	}
	if m.Count() != 1 {
		t.Fatalf("count=%d want=1", m.Count())
	}
}

func TestAvoidanceDirection(t *testing.T) {
	m := NewModel(DefaultConfig(), []world.Bounds{{Min: world.Zero, Max: world.Zero}}, &openFloor{}, nil, 1)
	if !m.AvoidanceDirection(world.V(5, 0, 0)).IsZero() {
		t.Fatalf("no fire should give zero avoidance")
	}
	m.Ignite(0) // zone is a single point at the origin

	dir := m.AvoidanceDirection(world.V(5, 0, 0))
	if math.Abs(dir.X-1) > 1e-9 || math.Abs(dir.Z) > 1e-9 {
		t.Fatalf("dir=%v want=(1,0,0)", dir)
	}
	if !m.AvoidanceDirection(world.V(25, 0, 0)).IsZero() {
		t.Fatalf("beyond threat radius should give zero avoidance")
	}
}
