// Package hazard models the fire: a single ignition inside a hazard zone,
// stochastic spread over navigable floor, and the threat field agents flee.
package hazard

import (
	"errors"
	"log/slog"
	"math/rand"

	"github.com/talgya/evacsim/internal/world"
)

var (
	ErrNoHazardZones   = errors.New("hazard: no hazard zones configured")
	ErrAlreadyIgnited  = errors.New("hazard: fire already started")
	ErrNoNavigationMap = errors.New("hazard: no navigation service")
)

// Navigable is the slice of the navigation service the fire needs.
type Navigable interface {
	SampleNavigable(p world.Vec3, radius float64) (world.Vec3, bool)
	Carve(p world.Vec3, radius float64) int
}

// Alarm is raised once on ignition.
type Alarm interface {
	Trigger(pos world.Vec3) int
}

// Config tunes ignition and spread.
type Config struct {
	SpreadInterval float64 // Seconds between spread attempts
	MaxNodes       int     // Hard cap on fire nodes
	SpreadRadius   float64 // How far from a source node a new node may appear
	SampleRadius   float64 // Navigability check radius for spread candidates
	ThreatRadius   float64 // Range within which agents feel a node
	CarveRadius    float64 // Floor removed from navigation around each node
}

// DefaultConfig matches a slowly creeping office fire.
func DefaultConfig() Config {
	return Config{
		SpreadInterval: 5,
		MaxNodes:       50,
		SpreadRadius:   2,
		SampleRadius:   1,
		ThreatRadius:   20,
		CarveRadius:    0.75,
	}
}

// Node is one burning point.
type Node struct {
	ID        int        `json:"id"`
	Position  world.Vec3 `json:"position"`
	IgnitedAt float64    `json:"ignited_at"` // Simulation seconds
}

// Model owns the fire node collection. Nodes are only ever added.
type Model struct {
	cfg   Config
	zones []world.Bounds
	nav   Navigable
	alarm Alarm
	rng   *rand.Rand

	nodes   []Node
	ignited bool
}

// NewModel creates an unlit fire model. alarm may be nil.
func NewModel(cfg Config, zones []world.Bounds, nav Navigable, alarm Alarm, seed int64) *Model {
	return &Model{
		cfg:   cfg,
		zones: append([]world.Bounds(nil), zones...),
		nav:   nav,
		alarm: alarm,
		rng:   rand.New(rand.NewSource(seed + 500)),
	}
}

// Config returns the model's tuning.
func (m *Model) Config() Config { return m.cfg }

// Ignited reports whether the fire has started this run.
func (m *Model) Ignited() bool { return m.ignited }

// Ignite starts the fire at a random point of a random hazard zone and raises
// the alarm. It fails without side effects when no zones exist or the fire is
// already burning.
func (m *Model) Ignite(now float64) (Node, error) {
	if m.ignited {
		return Node{}, ErrAlreadyIgnited
	}
	if len(m.zones) == 0 {
		return Node{}, ErrNoHazardZones
	}
	if m.nav == nil {
		return Node{}, ErrNoNavigationMap
	}

	zone := m.zones[m.rng.Intn(len(m.zones))]
	pos := zone.RandomPoint(m.rng, zone.Center().Y)
	m.ignited = true
	n := m.spawn(pos, now)
	slog.Info("fire started", "position", pos.String(), "zone_center", zone.Center().String())

	if m.alarm != nil {
		m.alarm.Trigger(pos)
	}
	return n, nil
}

// SpreadStep makes one spread attempt. It returns the new node and true when
// the fire grew; at the node cap it silently does nothing.
func (m *Model) SpreadStep(now float64) (Node, bool) {
	if !m.ignited || len(m.nodes) == 0 || len(m.nodes) >= m.cfg.MaxNodes {
		return Node{}, false
	}
	src := m.nodes[m.rng.Intn(len(m.nodes))]
	offset := world.RandomInsideUnitSphere(m.rng).Scale(m.cfg.SpreadRadius)
	candidate := src.Position.Add(offset)
	candidate.Y = src.Position.Y

	if _, ok := m.nav.SampleNavigable(candidate, m.cfg.SampleRadius); !ok {
		return Node{}, false
	}
	n := m.spawn(candidate, now)
	slog.Debug("fire spread", "node", n.ID, "position", candidate.String(), "total", len(m.nodes))
	return n, true
}

func (m *Model) spawn(pos world.Vec3, now float64) Node {
	n := Node{ID: len(m.nodes) + 1, Position: pos, IgnitedAt: now}
	m.nodes = append(m.nodes, n)
	m.nav.Carve(pos, m.cfg.CarveRadius)
	return n
}

// AvoidanceDirection returns the unit floor direction pointing away from all
// nodes within the threat radius, each weighted by 1 - d/radius. Zero when no
// node is in range.
func (m *Model) AvoidanceDirection(pos world.Vec3) world.Vec3 {
	sum := world.Zero
	threats := 0
	for _, n := range m.nodes {
		away := pos.Sub(n.Position)
		d := away.Len()
		if d >= m.cfg.ThreatRadius {
			continue
		}
		weight := 1 - d/m.cfg.ThreatRadius
		sum = sum.Add(away.Normalize().Scale(weight))
		threats++
	}
	if threats == 0 {
		return world.Zero
	}
	return sum.Flat().Normalize()
}

// Nodes returns a copy of the fire nodes in ignition order.
func (m *Model) Nodes() []Node {
	return append([]Node(nil), m.nodes...)
}

// Count returns the number of fire nodes.
func (m *Model) Count() int { return len(m.nodes) }

// Reset extinguishes the fire. Carved navigation is cleared by the owner of
// the navigation service.
func (m *Model) Reset() {
	m.nodes = nil
	m.ignited = false
}
