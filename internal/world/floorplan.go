package world

import "fmt"

// Layer classifies obstacles for ray queries.
type Layer uint8

const (
	LayerDefault      Layer = iota // Walls, furniture: blocks sight
	LayerIgnoreRaycast             // Decorative geometry sight passes through
)

// LayerName returns a human-readable layer name.
func LayerName(l Layer) string {
	switch l {
	case LayerDefault:
		return "default"
	case LayerIgnoreRaycast:
		return "ignore_raycast"
	default:
		return "unknown"
	}
}

// ParseLayer is the inverse of LayerName. Empty input maps to LayerDefault.
func ParseLayer(s string) (Layer, error) {
	switch s {
	case "", "default":
		return LayerDefault, nil
	case "ignore_raycast":
		return LayerIgnoreRaycast, nil
	}
	return 0, fmt.Errorf("unknown layer %q", s)
}

// Obstacle is a static box collider on the floor plan.
type Obstacle struct {
	Name    string `json:"name"`
	Box     Bounds `json:"box"`
	Layer   Layer  `json:"layer"`
	Trigger bool   `json:"trigger"` // Triggers never block movement or sight
}

// BlocksSight reports whether a ray query treats the obstacle as solid.
func (o Obstacle) BlocksSight() bool {
	return !o.Trigger && o.Layer == LayerDefault
}

// BlocksMovement reports whether the obstacle removes floor from navigation.
func (o Obstacle) BlocksMovement() bool {
	return !o.Trigger
}

// DefaultEyeHeight lifts sight rays off the floor so they do not clip it.
const DefaultEyeHeight = 1.0

// FloorPlan holds the walkable extent and its static obstacles.
type FloorPlan struct {
	Extent    Bounds     `json:"extent"`
	Obstacles []Obstacle `json:"obstacles"`
	EyeHeight float64    `json:"eye_height"`
}

// NewFloorPlan creates an empty plan covering extent.
func NewFloorPlan(extent Bounds) *FloorPlan {
	return &FloorPlan{Extent: extent, EyeHeight: DefaultEyeHeight}
}

// AddObstacle appends a static obstacle.
func (p *FloorPlan) AddObstacle(o Obstacle) {
	p.Obstacles = append(p.Obstacles, o)
}

// LineOfSight casts a ray at eye height above from, parallel to the segment
// from→to, and reports whether nothing solid lies in between.
func (p *FloorPlan) LineOfSight(from, to Vec3) bool {
	lift := Up.Scale(p.EyeHeight)
	eye := from.Add(lift)
	target := to.Add(lift)
	for _, o := range p.Obstacles {
		if !o.BlocksSight() {
			continue
		}
		if o.Box.SegmentHits(eye, target) {
			return false
		}
	}
	return true
}

// Walkable reports whether the floor point p is inside the extent and not
// covered by an obstacle footprint.
func (p *FloorPlan) Walkable(pt Vec3) bool {
	if !p.Extent.ContainsFlat(pt) {
		return false
	}
	for _, o := range p.Obstacles {
		if o.BlocksMovement() && o.Box.ContainsFlat(pt) {
			return false
		}
	}
	return true
}

// String returns a summary of the plan.
func (p *FloorPlan) String() string {
	size := p.Extent.Size()
	return fmt.Sprintf("FloorPlan(%.0fx%.0f, obstacles=%d)", size.X, size.Z, len(p.Obstacles))
}
