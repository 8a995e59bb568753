// Package waypoint holds the evacuation route network: beacons linked into
// chains toward the exits, plus the exit and finish-zone markers.
package waypoint

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/talgya/evacsim/internal/world"
)

// BeaconID is a stable handle into the graph. Zero means "no beacon".
type BeaconID uint32

// None is the absent beacon.
const None BeaconID = 0

// Beacon is a waypoint in an evacuation chain.
type Beacon struct {
	ID              BeaconID   `json:"id"`
	Name            string     `json:"name,omitempty"`
	Position        world.Vec3 `json:"position"`
	VisibilityRange float64    `json:"visibility_range"`
	Active          bool       `json:"active"`
	Next            BeaconID   `json:"next,omitempty"` // None marks the final beacon of a chain
}

// IsFinal reports whether the beacon ends its chain.
func (b *Beacon) IsFinal() bool { return b.Next == None }

// ErrCycle is returned when following Next pointers loops.
var ErrCycle = errors.New("waypoint: beacon chain contains a cycle")

// Graph indexes beacons, exits and finish zones.
type Graph struct {
	beacons  map[BeaconID]*Beacon
	active   []BeaconID // ascending ID
	exits    []world.Vec3
	finishes []world.Vec3
}

// NewGraph validates and indexes the route network. IDs must be unique and
// non-zero, Next must reference a known beacon and chains must be acyclic.
func NewGraph(beacons []Beacon, exits, finishes []world.Vec3) (*Graph, error) {
	g := &Graph{
		beacons:  make(map[BeaconID]*Beacon, len(beacons)),
		exits:    append([]world.Vec3(nil), exits...),
		finishes: append([]world.Vec3(nil), finishes...),
	}
	for i := range beacons {
		b := beacons[i]
		if b.ID == None {
			return nil, fmt.Errorf("waypoint: beacon %q has zero id", b.Name)
		}
		if _, dup := g.beacons[b.ID]; dup {
			return nil, fmt.Errorf("waypoint: duplicate beacon id %d", b.ID)
		}
		g.beacons[b.ID] = &b
	}
	for _, b := range g.beacons {
		if b.Next != None {
			if _, ok := g.beacons[b.Next]; !ok {
				return nil, fmt.Errorf("waypoint: beacon %d points to unknown beacon %d", b.ID, b.Next)
			}
		}
	}
	for id := range g.beacons {
		if err := g.checkAcyclic(id); err != nil {
			return nil, err
		}
	}
	g.rebuildActive()
	return g, nil
}

func (g *Graph) checkAcyclic(start BeaconID) error {
	seen := make(map[BeaconID]bool)
	for id := start; id != None; id = g.beacons[id].Next {
		if seen[id] {
			return fmt.Errorf("%w (revisits beacon %d from %d)", ErrCycle, id, start)
		}
		seen[id] = true
	}
	return nil
}

func (g *Graph) rebuildActive() {
	g.active = g.active[:0]
	for id, b := range g.beacons {
		if b.Active {
			g.active = append(g.active, id)
		}
	}
	sort.Slice(g.active, func(i, j int) bool { return g.active[i] < g.active[j] })
}

// Get returns the beacon with id, or nil.
func (g *Graph) Get(id BeaconID) *Beacon {
	return g.beacons[id]
}

// Len returns the beacon count.
func (g *Graph) Len() int { return len(g.beacons) }

// Next returns the successor of id, if any.
func (g *Graph) Next(id BeaconID) (BeaconID, bool) {
	b := g.beacons[id]
	if b == nil || b.Next == None {
		return None, false
	}
	return b.Next, true
}

// Active returns active beacons in ascending ID order.
func (g *Graph) Active() []*Beacon {
	out := make([]*Beacon, 0, len(g.active))
	for _, id := range g.active {
		out = append(out, g.beacons[id])
	}
	return out
}

// SetActive toggles a beacon. Unknown ids are ignored.
func (g *Graph) SetActive(id BeaconID, active bool) {
	b := g.beacons[id]
	if b == nil || b.Active == active {
		return
	}
	b.Active = active
	g.rebuildActive()
}

// Chain returns the beacons from id to the end of its chain, inclusive.
func (g *Graph) Chain(id BeaconID) []BeaconID {
	var out []BeaconID
	for cur := id; cur != None; cur = g.beacons[cur].Next {
		if g.beacons[cur] == nil {
			break
		}
		out = append(out, cur)
	}
	return out
}

// Reaches reports whether to lies on the chain starting at from (inclusive).
func (g *Graph) Reaches(from, to BeaconID) bool {
	for _, id := range g.Chain(from) {
		if id == to {
			return true
		}
	}
	return false
}

// Exits returns the exit markers.
func (g *Graph) Exits() []world.Vec3 { return g.exits }

// Finishes returns the finish-zone markers.
func (g *Graph) Finishes() []world.Vec3 { return g.finishes }

// NearestFinish returns the finish zone closest to pos by straight-line distance.
func (g *Graph) NearestFinish(pos world.Vec3) (world.Vec3, bool) {
	return nearest(g.finishes, pos)
}

// IsNearFinish reports whether any finish zone lies strictly within radius of pos.
func (g *Graph) IsNearFinish(pos world.Vec3, radius float64) bool {
	return anyWithin(g.finishes, pos, radius)
}

// IsNearExit reports whether any exit lies strictly within radius of pos.
func (g *Graph) IsNearExit(pos world.Vec3, radius float64) bool {
	return anyWithin(g.exits, pos, radius)
}

func nearest(points []world.Vec3, pos world.Vec3) (world.Vec3, bool) {
	best := world.Zero
	bestDist := math.Inf(1)
	for _, p := range points {
		if d := pos.Dist(p); d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func anyWithin(points []world.Vec3, pos world.Vec3, radius float64) bool {
	for _, p := range points {
		if pos.Dist(p) < radius {
			return true
		}
	}
	return false
}
