package waypoint

import (
	"errors"
	"testing"

	"github.com/talgya/evacsim/internal/world"
)

func chainBeacons() []Beacon {
	return []Beacon{
		{ID: 3, Position: world.V(20, 0, 0), Active: true},
		{ID: 1, Position: world.V(0, 0, 0), Active: true, Next: 2},
		{ID: 2, Position: world.V(10, 0, 0), Active: true, Next: 3},
		{ID: 4, Position: world.V(0, 0, 10), Active: false, Next: 3},
	}
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	bs := chainBeacons()
	bs[0].Next = 1 // 3 → 1 closes the loop
	_, err := NewGraph(bs, nil, nil)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("err=%v want ErrCycle", err)
	}
}

func TestNewGraph_RejectsDanglingAndDuplicate(t *testing.T) {
	bs := chainBeacons()
	bs[0].Next = 99
	if _, err := NewGraph(bs, nil, nil); err == nil {
		t.Fatalf("expected error for unknown next")
	}
	bs = append(chainBeacons(), Beacon{ID: 2})
	if _, err := NewGraph(bs, nil, nil); err == nil {
		t.Fatalf("expected error for duplicate id")
	}
	if _, err := NewGraph([]Beacon{{ID: None}}, nil, nil); err == nil {
		t.Fatalf("expected error for zero id")
	}
}

func TestChainTraversal(t *testing.T) {
	g, err := NewGraph(chainBeacons(), nil, nil)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	chain := g.Chain(1)
	if len(chain) != 3 || chain[0] != 1 || chain[2] != 3 {
		t.Fatalf("chain=%v want=[1 2 3]", chain)
	}
	if next, ok := g.Next(2); !ok || next != 3 {
		t.Fatalf("Next(2)=%d,%v want=3,true", next, ok)
	}
	if _, ok := g.Next(3); ok {
		t.Fatalf("final beacon should have no successor")
	}
	if !g.Reaches(4, 3) || g.Reaches(3, 1) {
		t.Fatalf("Reaches mismatch")
	}
}

func TestActiveIndex(t *testing.T) {
	g, _ := NewGraph(chainBeacons(), nil, nil)
	act := g.Active()
	if len(act) != 3 || act[0].ID != 1 || act[1].ID != 2 || act[2].ID != 3 {
		t.Fatalf("active order mismatch: %v", act)
	}
	g.SetActive(4, true)
	g.SetActive(1, false)
	act = g.Active()
	if len(act) != 3 || act[0].ID != 2 || act[2].ID != 4 {
		t.Fatalf("active after toggle mismatch")
	}
}

func TestNearestFinish(t *testing.T) {
	g, _ := NewGraph(nil, []world.Vec3{world.V(0, 0, 30)}, []world.Vec3{world.V(30, 0, 0), world.V(-5, 0, 0)})
	f, ok := g.NearestFinish(world.V(0, 0, 0))
	if !ok || f != world.V(-5, 0, 0) {
		t.Fatalf("nearest=%v ok=%v", f, ok)
	}
	if !g.IsNearFinish(world.V(-4, 0, 0), 3) || g.IsNearFinish(world.V(-2, 0, 0), 3) {
		t.Fatalf("IsNearFinish radius is strict")
	}
	if !g.IsNearExit(world.V(0, 0, 27), 5) {
		t.Fatalf("expected near exit")
	}

	empty, _ := NewGraph(nil, nil, nil)
	if _, ok := empty.NearestFinish(world.Zero); ok {
		t.Fatalf("no finishes should report not found")
	}
}
