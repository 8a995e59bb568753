package nav

import (
	"github.com/talgya/evacsim/internal/world"
)

// arriveEpsilon is how close a body must get to a waypoint to consume it.
const arriveEpsilon = 0.05

// Register adds a body at pos moving at speed. Re-registering a handle
// replaces its state.
func (g *Grid) Register(h Handle, pos world.Vec3, speed float64) {
	g.movers[h] = &mover{pos: pos, speed: speed, status: PathInvalid}
}

// Remove forgets a body.
func (g *Grid) Remove(h Handle) {
	delete(g.movers, h)
}

// Len returns the number of registered bodies.
func (g *Grid) Len() int { return len(g.movers) }

// Reset forgets every body and reopens carved cells.
func (g *Grid) Reset() {
	g.movers = make(map[Handle]*mover)
	g.ClearCarving()
}

// SetDestination plans a path for h toward dest. It returns false when no
// path at all could be planned.
func (g *Grid) SetDestination(h Handle, dest world.Vec3) bool {
	m, ok := g.movers[h]
	if !ok {
		return false
	}
	path, status := g.findPath(m.pos, dest)
	m.status = status
	if status == PathInvalid || len(path) == 0 {
		m.path = nil
		m.hasPath = false
		return false
	}
	m.path = path
	m.hasPath = true
	return true
}

// ResetPath drops the current path.
func (g *Grid) ResetPath(h Handle) {
	if m, ok := g.movers[h]; ok {
		m.path = nil
		m.hasPath = false
		m.vel = world.Zero
	}
}

// HasPath reports whether h is following a path.
func (g *Grid) HasPath(h Handle) bool {
	m, ok := g.movers[h]
	return ok && m.hasPath
}

// PathStatus returns the status of the most recent plan for h.
func (g *Grid) PathStatus(h Handle) PathStatus {
	m, ok := g.movers[h]
	if !ok {
		return PathInvalid
	}
	return m.status
}

// RemainingDistance returns the distance left along h's path, 0 when idle.
func (g *Grid) RemainingDistance(h Handle) float64 {
	m, ok := g.movers[h]
	if !ok || !m.hasPath {
		return 0
	}
	total := 0.0
	prev := m.pos
	for _, wp := range m.path {
		total += prev.Dist(wp)
		prev = wp
	}
	return total
}

// Position returns h's current position.
func (g *Grid) Position(h Handle) world.Vec3 {
	if m, ok := g.movers[h]; ok {
		return m.pos
	}
	return world.Zero
}

// Velocity returns h's velocity over the last Advance.
func (g *Grid) Velocity(h Handle) world.Vec3 {
	if m, ok := g.movers[h]; ok {
		return m.vel
	}
	return world.Zero
}

// Speed returns h's movement speed.
func (g *Grid) Speed(h Handle) float64 {
	if m, ok := g.movers[h]; ok {
		return m.speed
	}
	return 0
}

// SetSpeed changes h's movement speed.
func (g *Grid) SetSpeed(h Handle, speed float64) {
	if m, ok := g.movers[h]; ok {
		m.speed = speed
	}
}

// SetStopped pauses or resumes h without dropping its path.
func (g *Grid) SetStopped(h Handle, stopped bool) {
	if m, ok := g.movers[h]; ok {
		m.stopped = stopped
	}
}

// Stopped reports whether h is paused.
func (g *Grid) Stopped(h Handle) bool {
	m, ok := g.movers[h]
	return ok && m.stopped
}

// Advance moves every unpaused body along its path by speed*dt.
func (g *Grid) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	for _, m := range g.movers {
		start := m.pos
		if !m.stopped && m.hasPath {
			budget := m.speed * dt
			for budget > 0 && len(m.path) > 0 {
				to := m.path[0]
				d := m.pos.Dist(to)
				if d <= budget || d < arriveEpsilon {
					m.pos = to
					budget -= d
					m.path = m.path[1:]
					continue
				}
				m.pos = m.pos.Add(to.Sub(m.pos).Scale(budget / d))
				budget = 0
			}
			if len(m.path) == 0 {
				m.hasPath = false
			}
		}
		m.vel = m.pos.Sub(start).Scale(1 / dt)
	}
}

// Teleport moves h directly to pos without planning.
func (g *Grid) Teleport(h Handle, pos world.Vec3) {
	if m, ok := g.movers[h]; ok {
		m.pos = pos
		m.path = nil
		m.hasPath = false
		m.vel = world.Zero
	}
}
