package nav

import (
	"math"
	"testing"

	"github.com/talgya/evacsim/internal/world"
)

// wallPlan is a 20x20 room split by a wall along x=0 with a gap at the top.
func wallPlan() *world.FloorPlan {
	p := world.NewFloorPlan(world.Bounds{Min: world.V(-10, 0, -10), Max: world.V(10, 3, 10)})
	p.AddObstacle(world.Obstacle{Name: "wall", Box: world.Bounds{Min: world.V(-0.5, 0, -10), Max: world.V(0.5, 3, 6)}})
	return p
}

func newGrid(t *testing.T, p *world.FloorPlan) *Grid {
	t.Helper()
	g, err := NewGrid(p, 0.5)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestSampleNavigable(t *testing.T) {
	g := newGrid(t, wallPlan())

	p, ok := g.SampleNavigable(world.V(-5, 0, 0), 1)
	if !ok || p != world.V(-5, 0, 0) {
		t.Fatalf("open point should sample to itself, got %v ok=%v", p, ok)
	}

	p, ok = g.SampleNavigable(world.V(0, 0, 0), 1)
	if !ok {
		t.Fatalf("expected a navigable point beside the wall")
	}
	if math.Abs(p.X) < 0.5 {
		t.Fatalf("sampled point %v lies inside the wall", p)
	}

	if _, ok := g.SampleNavigable(world.V(0, 0, 0), 0.2); ok {
		t.Fatalf("tiny radius inside the wall should fail")
	}
}

func TestPathRoutesAroundWall(t *testing.T) {
	g := newGrid(t, wallPlan())
	g.Register(1, world.V(-5, 0, 0), 4)

	if !g.SetDestination(1, world.V(5, 0, 0)) {
		t.Fatalf("expected a path")
	}
	if got := g.PathStatus(1); got != PathComplete {
		t.Fatalf("status=%s want=complete", StatusName(got))
	}
	if d := g.RemainingDistance(1); d <= 10 {
		t.Fatalf("remaining=%f, a detour through the gap must exceed the straight 10", d)
	}

	for i := 0; i < 400 && g.HasPath(1); i++ {
		g.Advance(0.05)
		if !g.Walkable(g.Position(1)) {
			t.Fatalf("body entered a blocked cell at %v", g.Position(1))
		}
	}
	if g.HasPath(1) {
		t.Fatalf("body never arrived")
	}
	if d := g.Position(1).Dist(world.V(5, 0, 0)); d > 1e-6 {
		t.Fatalf("final distance=%f want=0", d)
	}
	if g.RemainingDistance(1) != 0 {
		t.Fatalf("remaining distance should be 0 after arrival")
	}
}

func TestCarvedCellsArePartial(t *testing.T) {
	g := newGrid(t, wallPlan())
	g.Register(1, world.V(-5, 0, 0), 4)

	// Seal the gap so the right half is unreachable.
	for z := 6.25; z < 10; z += 0.5 {
		g.Carve(world.V(0, 0, z), 0.9)
	}
	g.SetDestination(1, world.V(5, 0, 0))
	if got := g.PathStatus(1); got != PathPartial {
		t.Fatalf("status=%s want=partial", StatusName(got))
	}

	g.ClearCarving()
	g.SetDestination(1, world.V(5, 0, 0))
	if got := g.PathStatus(1); got != PathComplete {
		t.Fatalf("after clearing, status=%s want=complete", StatusName(got))
	}
}

func TestStoppedBodyHoldsPosition(t *testing.T) {
	g := newGrid(t, wallPlan())
	g.Register(1, world.V(-5, 0, -5), 2)
	g.SetDestination(1, world.V(-5, 0, 5))
	g.SetStopped(1, true)
	g.Advance(1)
	if g.Position(1) != world.V(-5, 0, -5) {
		t.Fatalf("stopped body moved to %v", g.Position(1))
	}
	if !g.Velocity(1).IsZero() {
		t.Fatalf("stopped body has velocity %v", g.Velocity(1))
	}
	g.SetStopped(1, false)
	g.Advance(1)
	if got := g.Position(1).Z; math.Abs(got-(-3)) > 1e-9 {
		t.Fatalf("z=%f want=-3", got)
	}
	if v := g.Velocity(1).Len(); math.Abs(v-2) > 1e-9 {
		t.Fatalf("speed=%f want=2", v)
	}
}

func TestOutsideExtentIsInvalid(t *testing.T) {
	g := newGrid(t, wallPlan())
	g.Register(1, world.V(50, 0, 50), 2)
	if g.SetDestination(1, world.V(-5, 0, 0)) {
		t.Fatalf("body outside the grid should not get a path")
	}
	if g.PathStatus(1) != PathInvalid {
		t.Fatalf("expected invalid status")
	}
}
