// Package agents provides the pedestrian model, the spawner that creates
// agents with category-dependent traits, and the per-agent decision engine
// that drives them from working to evacuating.
package agents

import (
	"fmt"

	"github.com/talgya/evacsim/internal/nav"
	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

// AgentID is a stable arena handle. Zero means "no agent".
type AgentID uint64

// NoAgent is the absent agent handle.
const NoAgent AgentID = 0

// Category is a fixed pedestrian profile.
type Category uint8

const (
	CategoryAdult Category = iota
	CategoryChild
	CategoryElderly
	CategoryDisabled
	CategoryBlind
)

// NumCategories is the size of the fixed category set.
const NumCategories = 5

var categoryNames = [NumCategories]string{"adult", "child", "elderly", "disabled", "blind"}

// CategoryName returns the lowercase name of c.
func CategoryName(c Category) string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory is the inverse of CategoryName.
func ParseCategory(s string) (Category, error) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown agent category %q", s)
}

// State is the agent's top-level mode.
type State uint8

const (
	StateWorking    State = iota // Wandering the floor, unaware of the fire
	StateEvacuating              // Heading out
)

// StateName returns the lowercase name of s.
func StateName(s State) string {
	if s == StateEvacuating {
		return "evacuating"
	}
	return "working"
}

// Traits are fixed at creation.
type Traits struct {
	MoveSpeed    float64 `json:"move_speed"`
	VisionRange  float64 `json:"vision_range"`
	HearingRange float64 `json:"hearing_range"`
	ReactionTime float64 `json:"reaction_time"` // Seconds between hearing the alarm and moving
}

// Agent is one pedestrian.
type Agent struct {
	ID       AgentID    `json:"id"`
	Category Category   `json:"category"`
	Traits   Traits     `json:"traits"`
	State    State      `json:"state"`
	Position world.Vec3 `json:"position"` // Synced from the navigator each tick

	// Evacuation
	TargetBeacon    waypoint.BeaconID   `json:"target_beacon,omitempty"`
	HeadingToFinish bool                `json:"heading_to_finish,omitempty"`
	Visited         []waypoint.BeaconID `json:"visited,omitempty"` // Beacons already passed, in order

	// Guidance (blind agents only)
	GuideID      AgentID    `json:"guide_id,omitempty"`
	BeingGuided  bool       `json:"being_guided,omitempty"`
	GuideLastPos world.Vec3 `json:"-"`

	// Working
	WanderBounds *world.Bounds `json:"wander_bounds,omitempty"`
	wanderTimer  float64

	ReactionPending bool    `json:"reaction_pending,omitempty"`
	EvacuatingSince float64 `json:"evacuating_since,omitempty"`
}

// Initialize assigns category and traits. Traits are immutable afterwards.
func (a *Agent) Initialize(c Category, t Traits) {
	a.Category = c
	a.Traits = t
}

// SetWanderBounds confines working-state wandering to b.
func (a *Agent) SetWanderBounds(b world.Bounds) {
	a.WanderBounds = &b
}

// Handle returns the navigator handle for a.
func (a *Agent) Handle() nav.Handle { return nav.Handle(a.ID) }

// IsBlind reports whether a relies on hearing alone.
func (a *Agent) IsBlind() bool { return a.Category == CategoryBlind }

// HasBeacon reports whether a knows an evacuation beacon.
func (a *Agent) HasBeacon() bool { return a.TargetBeacon != waypoint.None }

// HasVisited reports whether a has already passed beacon id.
func (a *Agent) HasVisited(id waypoint.BeaconID) bool {
	for _, v := range a.Visited {
		if v == id {
			return true
		}
	}
	return false
}

func (a *Agent) String() string {
	return fmt.Sprintf("agent-%d(%s,%s)", a.ID, CategoryName(a.Category), StateName(a.State))
}
