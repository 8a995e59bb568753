// Target selection for evacuating agents without a beacon.
package agents

import (
	"math"

	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

// selectTarget runs the fallback chain: a guide for blind agents, then a
// visible beacon, then a better-informed peer, then the nearest finish, and
// finally blind flight away from the fire (or a panicked wander).
func (d *Decider) selectTarget(a *Agent) {
	h := a.Handle()

	if a.IsBlind() {
		if guide := d.findGuide(a); guide != nil {
			a.GuideID = guide.ID
			a.BeingGuided = true
			a.GuideLastPos = guide.Position
			d.Nav.SetDestination(h, guide.Position)
			d.emit(a, "guide", "following "+guide.String())
			return
		}
		// Nobody to follow. Wander in panic until someone comes by.
		d.wander(a)
		return
	}

	if id := d.bestVisibleBeacon(a); id != waypoint.None {
		a.TargetBeacon = id
		a.HeadingToFinish = false
		d.Nav.SetDestination(h, d.Routes.Get(id).Position)
		d.emit(a, "beacon", "spotted "+d.Routes.Get(id).Name)
		return
	}

	if leader := d.findLeader(a); leader != nil {
		d.Nav.SetDestination(h, leader.Position)
		d.emit(a, "follow", "following "+leader.String())
		return
	}

	if finish, ok := d.Routes.NearestFinish(a.Position); ok {
		a.HeadingToFinish = true
		d.Nav.SetDestination(h, finish)
		return
	}

	away := d.escapeDirection(a.Position)
	if away.IsZero() {
		d.wander(a)
		return
	}
	d.Nav.SetDestination(h, a.Position.Add(away.Scale(d.Params.FleeDistance)))
}

// findGuide picks the evacuating sighted agent within hearing range that
// best serves a blind agent: one that knows a beacon wins over one that does
// not, then the nearest.
func (d *Decider) findGuide(a *Agent) *Agent {
	var best *Agent
	bestKnows := false
	bestDist := math.Inf(1)

	for _, other := range d.Agents.Evacuating() {
		if other.ID == a.ID || other.IsBlind() {
			continue
		}
		dist := a.Position.Dist(other.Position)
		if dist > a.Traits.HearingRange {
			continue
		}
		knows := other.HasBeacon()
		switch {
		case best == nil,
			knows && !bestKnows,
			knows == bestKnows && dist < bestDist:
			best, bestKnows, bestDist = other, knows, dist
		}
	}
	return best
}

// bestVisibleBeacon scores every active beacon the agent can see. Beacons
// already passed, or upstream of one already passed, are skipped so progress
// along a chain never goes backwards. Ties go to the lowest ID.
func (d *Decider) bestVisibleBeacon(a *Agent) waypoint.BeaconID {
	if a.Traits.VisionRange <= 0 {
		return waypoint.None
	}

	away := d.escapeDirection(a.Position)
	best := waypoint.None
	bestScore := math.Inf(-1)

	for _, b := range d.Routes.Active() {
		if d.behindProgress(a, b.ID) {
			continue
		}
		dist := a.Position.Dist(b.Position)
		if dist > a.Traits.VisionRange || dist > b.VisibilityRange {
			continue
		}
		if d.Sight != nil && !d.Sight.LineOfSight(a.Position, b.Position) {
			continue
		}

		dirScore := 1.0
		if !away.IsZero() {
			toBeacon := b.Position.Sub(a.Position).Flat().Normalize()
			align := toBeacon.Dot(away)
			if align < d.Params.AlignmentCutoff {
				continue
			}
			dirScore = math.Max(0, align)
		}

		score := d.Params.DistanceWeight*(1-dist/a.Traits.VisionRange) +
			d.Params.DirectionWeight*dirScore
		if score > bestScore {
			best, bestScore = b.ID, score
		}
	}
	return best
}

// behindProgress reports whether id was visited or leads into a visited beacon.
func (d *Decider) behindProgress(a *Agent, id waypoint.BeaconID) bool {
	for _, v := range a.Visited {
		if v == id || d.Routes.Reaches(id, v) {
			return true
		}
	}
	return false
}

// findLeader returns the nearest visible evacuating peer that is on its way
// to a beacon and closer to it than a is to its own.
func (d *Decider) findLeader(a *Agent) *Agent {
	if a.Traits.VisionRange <= 0 {
		return nil
	}
	myDist := d.distanceToTarget(a)

	var best *Agent
	bestDist := math.Inf(1)
	for _, other := range d.Agents.Evacuating() {
		if other.ID == a.ID || !other.HasBeacon() || !d.Nav.HasPath(other.Handle()) {
			continue
		}
		dist := a.Position.Dist(other.Position)
		if dist > a.Traits.VisionRange || dist >= bestDist {
			continue
		}
		if d.distanceToTarget(other) >= myDist {
			continue
		}
		if d.Sight != nil && !d.Sight.LineOfSight(a.Position, other.Position) {
			continue
		}
		best, bestDist = other, dist
	}
	return best
}

func (d *Decider) escapeDirection(pos world.Vec3) world.Vec3 {
	if d.Threat == nil {
		return world.Zero
	}
	return d.Threat.AvoidanceDirection(pos).Flat().Normalize()
}
