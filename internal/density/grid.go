// Package density buckets agents into square floor tiles every tick, tracks
// how long each tile stays overcrowded and penalizes one occupant per
// sustained window.
package density

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/evacsim/internal/world"
)

// Policy selects what happens to a penalized agent.
type Policy uint8

const (
	PolicyRemove   Policy = iota // Agent is taken out of the simulation
	PolicySlowdown               // Agent's speed is permanently reduced
)

// PolicyName returns the config spelling of p.
func PolicyName(p Policy) string {
	if p == PolicySlowdown {
		return "slowdown"
	}
	return "remove"
}

// ParsePolicy is the inverse of PolicyName.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "remove":
		return PolicyRemove, nil
	case "slowdown":
		return PolicySlowdown, nil
	}
	return 0, fmt.Errorf("unknown penalty policy %q", s)
}

// Config tunes crowd detection.
type Config struct {
	TileSize        float64
	MaxPerTile      int
	PenaltyDuration float64 // Seconds a tile may stay overcrowded
	SlowdownSpeed   float64
	Policy          Policy
}

// DefaultConfig returns one-metre tiles holding at most three agents.
func DefaultConfig() Config {
	return Config{
		TileSize:        1,
		MaxPerTile:      3,
		PenaltyDuration: 2,
		SlowdownSpeed:   2,
		Policy:          PolicyRemove,
	}
}

// Coord addresses a tile.
type Coord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Occupant is an agent's position as sampled for this tick.
type Occupant struct {
	ID  uint64
	Pos world.Vec3
}

// Penalty is one applied crowding penalty.
type Penalty struct {
	Cell   Coord  `json:"cell"`
	Agent  uint64 `json:"agent"`
	Policy Policy `json:"policy"`
}

// Target applies penalties to live agents.
type Target interface {
	RemoveAgent(id uint64)
	Speed(id uint64) float64
	SetSpeed(id uint64, speed float64)
}

type cell struct {
	occupants   []uint64 // Rebuilt every tick
	crowdedTime float64  // Persists across ticks while over threshold
}

// CellInfo is a read-only view of a tile.
type CellInfo struct {
	Coord       Coord   `json:"coord"`
	Count       int     `json:"count"`
	CrowdedTime float64 `json:"crowded_time"`
	Crowded     bool    `json:"crowded"`
}

// Grid tracks tile occupancy across ticks.
type Grid struct {
	cfg   Config
	rng   *rand.Rand
	cells map[Coord]*cell

	removed        int
	slowed         int
	originalSpeeds map[uint64]float64 // Recorded on first slowdown, never restored
}

// NewGrid creates an empty grid.
func NewGrid(cfg Config, seed int64) *Grid {
	return &Grid{
		cfg:            cfg,
		rng:            rand.New(rand.NewSource(seed + 700)),
		cells:          make(map[Coord]*cell),
		originalSpeeds: make(map[uint64]float64),
	}
}

// Config returns the grid's tuning.
func (g *Grid) Config() Config { return g.cfg }

// CellOf maps a world position to its tile.
func (g *Grid) CellOf(p world.Vec3) Coord {
	return Coord{
		X: int(math.Floor(p.X / g.cfg.TileSize)),
		Z: int(math.Floor(p.Z / g.cfg.TileSize)),
	}
}

// Rebucket clears every tile's occupant list and files each occupant under
// its current tile.
func (g *Grid) Rebucket(occupants []Occupant) {
	for _, c := range g.cells {
		c.occupants = c.occupants[:0]
	}
	for _, o := range occupants {
		k := g.CellOf(o.Pos)
		c := g.cells[k]
		if c == nil {
			c = &cell{}
			g.cells[k] = c
		}
		c.occupants = append(c.occupants, o.ID)
	}
}

// Update rebuckets occupants, advances crowding timers by dt and applies due
// penalties through target. Cells are visited in coordinate order so a seeded
// run is reproducible. The occupants slice is a snapshot; target may remove
// agents while Update runs.
func (g *Grid) Update(dt float64, occupants []Occupant, target Target) []Penalty {
	g.Rebucket(occupants)

	var penalties []Penalty
	for _, k := range g.sortedCoords() {
		c := g.cells[k]
		if len(c.occupants) <= g.cfg.MaxPerTile {
			c.crowdedTime = 0
			continue
		}
		c.crowdedTime += dt
		if c.crowdedTime < g.cfg.PenaltyDuration {
			continue
		}
		victim := c.occupants[g.rng.Intn(len(c.occupants))]
		g.apply(victim, target)
		penalties = append(penalties, Penalty{Cell: k, Agent: victim, Policy: g.cfg.Policy})
		c.crowdedTime = 0
		slog.Warn("crowding penalty",
			"cell_x", k.X, "cell_z", k.Z,
			"occupants", len(c.occupants),
			"agent", victim,
			"policy", PolicyName(g.cfg.Policy),
		)
	}
	return penalties
}

func (g *Grid) apply(id uint64, target Target) {
	switch g.cfg.Policy {
	case PolicyRemove:
		g.removed++
		if target != nil {
			target.RemoveAgent(id)
		}
	case PolicySlowdown:
		if _, seen := g.originalSpeeds[id]; !seen {
			speed := 0.0
			if target != nil {
				speed = target.Speed(id)
			}
			g.originalSpeeds[id] = speed
			g.slowed++
		}
		if target != nil {
			target.SetSpeed(id, g.cfg.SlowdownSpeed)
		}
	}
}

func (g *Grid) sortedCoords() []Coord {
	keys := make([]Coord, 0, len(g.cells))
	for k := range g.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Z < keys[j].Z
	})
	return keys
}

// Occupants returns the agents filed under k at the last rebucket.
func (g *Grid) Occupants(k Coord) []uint64 {
	c := g.cells[k]
	if c == nil {
		return nil
	}
	return append([]uint64(nil), c.occupants...)
}

// CrowdedTime returns the accumulated overcrowded duration of k.
func (g *Grid) CrowdedTime(k Coord) float64 {
	if c := g.cells[k]; c != nil {
		return c.crowdedTime
	}
	return 0
}

// Cells returns every occupied tile in coordinate order.
func (g *Grid) Cells() []CellInfo {
	var out []CellInfo
	for _, k := range g.sortedCoords() {
		c := g.cells[k]
		if len(c.occupants) == 0 {
			continue
		}
		out = append(out, CellInfo{
			Coord:       k,
			Count:       len(c.occupants),
			CrowdedTime: c.crowdedTime,
			Crowded:     len(c.occupants) > g.cfg.MaxPerTile,
		})
	}
	return out
}

// Removed returns how many agents the Remove policy has taken out.
func (g *Grid) Removed() int { return g.removed }

// Slowed returns how many distinct agents have been slowed.
func (g *Grid) Slowed() int { return g.slowed }

// OriginalSpeed returns the speed an agent had before its first slowdown.
func (g *Grid) OriginalSpeed(id uint64) (float64, bool) {
	s, ok := g.originalSpeeds[id]
	return s, ok
}

// Reset drops all tiles, counters and recorded speeds.
func (g *Grid) Reset() {
	g.cells = make(map[Coord]*cell)
	g.originalSpeeds = make(map[uint64]float64)
	g.removed = 0
	g.slowed = 0
}
