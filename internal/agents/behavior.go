// Agent behavior is a two-state machine. Working agents wander; evacuating
// agents run a fixed priority list every tick, first match wins.
package agents

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/talgya/evacsim/internal/nav"
	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

// Navigator is the path oracle agents steer through.
type Navigator interface {
	SampleNavigable(p world.Vec3, radius float64) (world.Vec3, bool)
	SetDestination(h nav.Handle, dest world.Vec3) bool
	ResetPath(h nav.Handle)
	HasPath(h nav.Handle) bool
	PathStatus(h nav.Handle) nav.PathStatus
	RemainingDistance(h nav.Handle) float64
	Velocity(h nav.Handle) world.Vec3
	SetStopped(h nav.Handle, stopped bool)
}

// Sight answers line-of-sight queries.
type Sight interface {
	LineOfSight(from, to world.Vec3) bool
}

// ThreatField gives the direction away from nearby hazards.
type ThreatField interface {
	AvoidanceDirection(pos world.Vec3) world.Vec3
}

// Params tunes the decision engine. Distances are in metres, times in seconds.
type Params struct {
	WanderInterval      float64 // Forced re-target period while working
	WanderNearDistance  float64 // Re-target when this close to the wander goal
	WanderRadius        float64 // Fallback wander radius without bounds
	WanderSampleRadius  float64 // Snap radius for wander goals
	ExitExclusionRadius float64 // Wander goals this close to an exit are rejected

	GuideFollowDistance float64 // Re-path to the guide beyond this
	GuideStopDistance   float64 // Stand still closer than this
	FinishRadius        float64 // Finish detection around a position

	BeaconReachDistance float64 // Beacon counts as reached
	BeaconStuckDistance float64 // Beacon counts as reached when stalled this close
	StuckSpeedSq        float64 // Squared speed under which an agent is stalled
	RepathDistance      float64 // Re-issue the beacon path when this little is left
	ArrivalRemaining    float64 // Path remainder under which a finish counts as reached

	AlignmentCutoff float64 // Beacons more opposed to the escape direction are ignored
	DistanceWeight  float64
	DirectionWeight float64
	FleeDistance    float64 // Blind flight distance along the escape direction
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		WanderInterval:      3,
		WanderNearDistance:  1.5,
		WanderRadius:        15,
		WanderSampleRadius:  5,
		ExitExclusionRadius: 5,

		GuideFollowDistance: 2,
		GuideStopDistance:   0.5,
		FinishRadius:        3,

		BeaconReachDistance: 4,
		BeaconStuckDistance: 8,
		StuckSpeedSq:        0.2,
		RepathDistance:      0.5,
		ArrivalRemaining:    2,

		AlignmentCutoff: -0.3,
		DistanceWeight:  0.3,
		DirectionWeight: 0.7,
		FleeDistance:    10,
	}
}

// Outcome reports what a tick did to an agent's lifecycle.
type Outcome uint8

const (
	OutcomeNone      Outcome = iota
	OutcomeEvacuated         // Agent reached safety and leaves the simulation
)

// Decider runs agent decisions against the shared environment.
type Decider struct {
	Nav    Navigator
	Sight  Sight
	Routes *waypoint.Graph
	Threat ThreatField
	Agents *Registry
	Params Params

	// OnEvent, when set, receives notable decisions for the event log.
	OnEvent func(a *Agent, category, detail string)

	rng *rand.Rand
}

// NewDecider wires a decision engine.
func NewDecider(n Navigator, sight Sight, routes *waypoint.Graph, threat ThreatField, reg *Registry, p Params, seed int64) *Decider {
	return &Decider{
		Nav:    n,
		Sight:  sight,
		Routes: routes,
		Threat: threat,
		Agents: reg,
		Params: p,
		rng:    rand.New(rand.NewSource(seed + 900)),
	}
}

func (d *Decider) emit(a *Agent, category, detail string) {
	slog.Debug(detail, "agent", a.ID, "category", CategoryName(a.Category))
	if d.OnEvent != nil {
		d.OnEvent(a, category, detail)
	}
}

// StartWandering randomizes the first re-target and sends a fresh agent off.
func (d *Decider) StartWandering(a *Agent) {
	a.wanderTimer = d.rng.Float64() * d.Params.WanderInterval
	d.wander(a)
}

// BeginEvacuation switches a to evacuating. It returns false when a was
// already evacuating. The wander path is dropped so the next tick decides.
func (d *Decider) BeginEvacuation(a *Agent, now float64) bool {
	a.ReactionPending = false
	if a.State == StateEvacuating {
		return false
	}
	d.Agents.SetState(a, StateEvacuating)
	a.EvacuatingSince = now
	d.Nav.ResetPath(a.Handle())
	d.emit(a, "alarm", "heard the alarm, evacuating")
	return true
}

// Update runs one tick of a's behavior.
func (d *Decider) Update(a *Agent, dt float64) Outcome {
	if a.State == StateWorking {
		d.updateWorking(a, dt)
		return OutcomeNone
	}
	return d.updateEvacuating(a)
}

func (d *Decider) updateWorking(a *Agent, dt float64) {
	h := a.Handle()
	a.wanderTimer += dt
	if !d.Nav.HasPath(h) ||
		d.Nav.RemainingDistance(h) < d.Params.WanderNearDistance ||
		a.wanderTimer >= d.Params.WanderInterval {
		a.wanderTimer = 0
		d.wander(a)
	}
}

// wander picks a random goal inside the agent's bounds (or around it), snaps
// it to the floor and walks there unless it is next to an exit.
func (d *Decider) wander(a *Agent) {
	var goal world.Vec3
	if a.WanderBounds != nil {
		goal = a.WanderBounds.RandomPoint(d.rng, a.Position.Y)
	} else {
		goal = a.Position.Add(world.RandomInsideUnitSphere(d.rng).Scale(d.Params.WanderRadius))
		goal.Y = a.Position.Y
	}

	hit, ok := d.Nav.SampleNavigable(goal, d.Params.WanderSampleRadius)
	if !ok {
		return
	}
	if d.Routes != nil && d.Routes.IsNearExit(hit, d.Params.ExitExclusionRadius) {
		return
	}
	d.Nav.SetDestination(a.Handle(), hit)
}

func (d *Decider) updateEvacuating(a *Agent) Outcome {
	h := a.Handle()
	p := d.Params

	// 1. Follow a guide.
	if a.BeingGuided {
		if out, handled := d.followGuide(a); handled {
			return out
		}
	}

	// 2. Beacon reached (or stalled close to it): move along the chain.
	if beacon := d.Routes.Get(a.TargetBeacon); beacon != nil {
		dist := a.Position.Dist(beacon.Position)
		stuck := dist < p.BeaconStuckDistance && d.Nav.Velocity(h).LenSq() < p.StuckSpeedSq
		if dist < p.BeaconReachDistance || stuck {
			d.advance(a)
			return OutcomeNone
		}
	}

	// 3. Arrived at a finish zone.
	pathedToFinish := a.HeadingToFinish ||
		(d.Nav.HasPath(h) && d.Nav.RemainingDistance(h) < p.ArrivalRemaining)
	if pathedToFinish && d.Routes.IsNearFinish(a.Position, p.FinishRadius) {
		d.emit(a, "evacuated", "reached a finish zone")
		return OutcomeEvacuated
	}

	// 4. Keep heading for the known beacon.
	if beacon := d.Routes.Get(a.TargetBeacon); beacon != nil {
		if !d.Nav.HasPath(h) || d.Nav.RemainingDistance(h) < p.RepathDistance {
			if !d.Nav.SetDestination(h, beacon.Position) || d.unreachable(a, beacon) {
				d.abandonBeacon(a)
			}
		}
		return OutcomeNone
	}

	// 5. No beacon and no usable path: choose something.
	if !d.Nav.HasPath(h) || d.Nav.PathStatus(h) != nav.PathComplete {
		d.selectTarget(a)
	}
	return OutcomeNone
}

// followGuide returns handled=false when the guide is gone and the agent
// should decide for itself.
func (d *Decider) followGuide(a *Agent) (Outcome, bool) {
	h := a.Handle()
	p := d.Params

	guide := d.Agents.Get(a.GuideID)
	if guide == nil {
		if d.Routes.IsNearFinish(a.GuideLastPos, p.FinishRadius) {
			d.emit(a, "evacuated", "reached a finish zone with a guide")
			return OutcomeEvacuated, true
		}
		d.emit(a, "guide", "lost the guide")
		a.BeingGuided = false
		a.GuideID = NoAgent
		d.Nav.SetStopped(h, false)
		d.Nav.ResetPath(h)
		return OutcomeNone, false
	}

	a.GuideLastPos = guide.Position
	dist := a.Position.Dist(guide.Position)
	switch {
	case dist > p.GuideFollowDistance:
		d.Nav.SetStopped(h, false)
		d.Nav.SetDestination(h, guide.Position)
	case dist < p.GuideStopDistance:
		d.Nav.SetStopped(h, true)
	default:
		d.Nav.SetStopped(h, false)
	}

	if d.Routes.IsNearFinish(guide.Position, p.FinishRadius) {
		d.emit(a, "evacuated", "reached a finish zone with a guide")
		return OutcomeEvacuated, true
	}
	return OutcomeNone, true
}

// advance moves a to its beacon's successor, or toward the nearest finish at
// the end of the chain.
func (d *Decider) advance(a *Agent) {
	h := a.Handle()
	cur := a.TargetBeacon
	a.Visited = append(a.Visited, cur)

	if next, ok := d.Routes.Next(cur); ok {
		a.TargetBeacon = next
		d.Nav.SetDestination(h, d.Routes.Get(next).Position)
		d.emit(a, "beacon", "moving to next beacon")
		return
	}

	a.TargetBeacon = waypoint.None
	if finish, ok := d.Routes.NearestFinish(a.Position); ok {
		a.HeadingToFinish = true
		d.Nav.SetDestination(h, finish)
		d.emit(a, "beacon", "reached last beacon, heading to finish")
	}
}

// unreachable reports whether the path toward beacon stops short of it and
// the agent is already standing at the end of that partial path.
func (d *Decider) unreachable(a *Agent, beacon *waypoint.Beacon) bool {
	h := a.Handle()
	return d.Nav.PathStatus(h) == nav.PathPartial &&
		d.Nav.RemainingDistance(h) < d.Params.RepathDistance &&
		a.Position.Dist(beacon.Position) >= d.Params.BeaconStuckDistance
}

func (d *Decider) abandonBeacon(a *Agent) {
	a.Visited = append(a.Visited, a.TargetBeacon)
	a.TargetBeacon = waypoint.None
	d.Nav.ResetPath(a.Handle())
	d.emit(a, "beacon", "beacon unreachable, choosing again")
}

// ShareInfo is called when a touches other. If other is already heading for
// the beacon after a's, a skips ahead to it. Returns whether a changed target.
func (d *Decider) ShareInfo(a, other *Agent) bool {
	if a.State != StateEvacuating || other.State != StateEvacuating {
		return false
	}
	if !a.HasBeacon() || !other.HasBeacon() {
		return false
	}
	next, ok := d.Routes.Next(a.TargetBeacon)
	if !ok || other.TargetBeacon != next {
		return false
	}
	a.Visited = append(a.Visited, a.TargetBeacon)
	a.TargetBeacon = next
	d.Nav.SetDestination(a.Handle(), d.Routes.Get(next).Position)
	d.emit(a, "beacon", "learned the next beacon from a peer")
	return true
}

// distanceToTarget is the straight-line distance to a's beacon, +Inf if none.
func (d *Decider) distanceToTarget(a *Agent) float64 {
	b := d.Routes.Get(a.TargetBeacon)
	if b == nil {
		return math.Inf(1)
	}
	return a.Position.Dist(b.Position)
}
