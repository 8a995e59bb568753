package density

import (
	"testing"

	"github.com/talgya/evacsim/internal/world"
)

// population is a minimal Target over a map of speeds.
type population struct {
	speeds  map[uint64]float64
	removed []uint64
}

func newPopulation(n int) *population {
	p := &population{speeds: make(map[uint64]float64)}
	for i := 1; i <= n; i++ {
		p.speeds[uint64(i)] = 4
	}
	return p
}

func (p *population) RemoveAgent(id uint64) {
	delete(p.speeds, id)
	p.removed = append(p.removed, id)
}
func (p *population) Speed(id uint64) float64       { return p.speeds[id] }
func (p *population) SetSpeed(id uint64, s float64) { p.speeds[id] = s }

func (p *population) occupants(pos world.Vec3) []Occupant {
	var out []Occupant
	for id := uint64(1); id <= 64; id++ {
		if _, ok := p.speeds[id]; ok {
			out = append(out, Occupant{ID: id, Pos: pos})
		}
	}
	return out
}

func TestCellOf_FloorDivision(t *testing.T) {
	g := NewGrid(Config{TileSize: 2, MaxPerTile: 3}, 1)
	cases := []struct {
		p    world.Vec3
		want Coord
	}{
		{world.V(0.5, 0, 0.5), Coord{0, 0}},
		{world.V(-0.5, 0, 3.9), Coord{-1, 1}},
		{world.V(4, 7, -4), Coord{2, -2}},
	}
	for _, c := range cases {
		if got := g.CellOf(c.p); got != c.want {
			t.Fatalf("CellOf(%v)=%v want=%v", c.p, got, c.want)
		}
	}
}

func TestRemovePolicy_OnePenaltyPerWindow(t *testing.T) {
	g := NewGrid(DefaultConfig(), 1) // max 3, duration 2s
	pop := newPopulation(5)
	pos := world.V(0.5, 0, 0.5)
	k := g.CellOf(pos)

	var total []Penalty
	for i := 0; i < 6; i++ { // 3 seconds in 0.5s ticks
		total = append(total, g.Update(0.5, pop.occupants(pos), pop)...)
	}

	if len(total) != 1 {
		t.Fatalf("penalties=%d want=1", len(total))
	}
	if g.Removed() != 1 || len(pop.removed) != 1 {
		t.Fatalf("removed=%d/%d want=1", g.Removed(), len(pop.removed))
	}
	if len(pop.speeds) != 4 {
		t.Fatalf("alive=%d want=4", len(pop.speeds))
	}
	// Reset at t=2, still crowded (4 > 3) for two more ticks.
	if got := g.CrowdedTime(k); got != 1.0 {
		t.Fatalf("crowdedTime=%v want=1.0", got)
	}
}

func TestChronicCrowdingPenalizesRepeatedly(t *testing.T) {
	g := NewGrid(DefaultConfig(), 1)
	pop := newPopulation(6)
	pos := world.V(0.5, 0, 0.5)
	for i := 0; i < 8; i++ { // 4 seconds
		g.Update(0.5, pop.occupants(pos), pop)
	}
	if g.Removed() != 2 {
		t.Fatalf("removed=%d want=2", g.Removed())
	}
}

func TestAtThresholdNeverAccumulates(t *testing.T) {
	g := NewGrid(DefaultConfig(), 1)
	pop := newPopulation(3)
	pos := world.V(0.5, 0, 0.5)
	for i := 0; i < 20; i++ {
		if p := g.Update(0.5, pop.occupants(pos), pop); len(p) != 0 {
			t.Fatalf("unexpected penalty at tick %d", i)
		}
		if ct := g.CrowdedTime(g.CellOf(pos)); ct != 0 {
			t.Fatalf("crowdedTime=%v want=0", ct)
		}
	}
}

func TestAccumulatorResetsWhenCrowdClears(t *testing.T) {
	g := NewGrid(DefaultConfig(), 1)
	pop := newPopulation(4)
	pos := world.V(0.5, 0, 0.5)
	k := g.CellOf(pos)

	g.Update(0.5, pop.occupants(pos), pop)
	g.Update(0.5, pop.occupants(pos), pop)
	if g.CrowdedTime(k) != 1.0 {
		t.Fatalf("crowdedTime=%v want=1.0", g.CrowdedTime(k))
	}
	// One agent walks to the next tile.
	occ := pop.occupants(pos)
	occ[3].Pos = world.V(1.5, 0, 0.5)
	g.Update(0.5, occ, pop)
	if g.CrowdedTime(k) != 0 {
		t.Fatalf("crowdedTime=%v want=0 after dropping to threshold", g.CrowdedTime(k))
	}
}

func TestSlowdownPolicy_DoesNotStack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicySlowdown
	cfg.MaxPerTile = 0
	cfg.PenaltyDuration = 1
	g := NewGrid(cfg, 1)
	pop := newPopulation(1)
	pos := world.V(0.5, 0, 0.5)

	for i := 0; i < 4; i++ {
		g.Update(1, pop.occupants(pos), pop)
	}
	if pop.speeds[1] != cfg.SlowdownSpeed {
		t.Fatalf("speed=%v want=%v", pop.speeds[1], cfg.SlowdownSpeed)
	}
	orig, ok := g.OriginalSpeed(1)
	if !ok || orig != 4 {
		t.Fatalf("original speed=%v,%v want=4,true", orig, ok)
	}
	if g.Slowed() != 1 {
		t.Fatalf("slowed=%d want=1", g.Slowed())
	}
	if g.Removed() != 0 {
		t.Fatalf("slowdown policy must not remove")
	}
}

func TestOccupancyRebuiltEachTick(t *testing.T) {
	g := NewGrid(DefaultConfig(), 1)
	a := world.V(0.5, 0, 0.5)
	b := world.V(5.5, 0, 5.5)
	g.Update(0.1, []Occupant{{ID: 1, Pos: a}}, nil)
	g.Update(0.1, []Occupant{{ID: 1, Pos: b}}, nil)
	if n := len(g.Occupants(g.CellOf(a))); n != 0 {
		t.Fatalf("stale occupant left in old cell: %d", n)
	}
	if n := len(g.Occupants(g.CellOf(b))); n != 1 {
		t.Fatalf("occupants=%d want=1", n)
	}
	if cells := g.Cells(); len(cells) != 1 {
		t.Fatalf("occupied cells=%d want=1", len(cells))
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicyRemove, PolicySlowdown} {
		got, err := ParsePolicy(PolicyName(p))
		if err != nil || got != p {
			t.Fatalf("round trip %v -> %v, %v", p, got, err)
		}
	}
	if _, err := ParsePolicy("explode"); err == nil {
		t.Fatalf("expected error")
	}
}
