package engine

import (
	"time"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/density"
	"github.com/talgya/evacsim/internal/hazard"
)

// Status is a point-in-time summary of the run.
type Status struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Tick      uint64    `json:"tick"`
	Time      float64   `json:"time"`
	SimTime   string    `json:"sim_time"`
	Alarm     bool      `json:"alarm"`
	Timers    int       `json:"pending_timers"`
	Policy    string    `json:"density_policy"`
	Stats     Stats     `json:"stats"`
}

// RunReport is the outcome of a finished (or abandoned) run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Ticks      uint64    `json:"ticks"`
	SimSeconds float64   `json:"sim_seconds"`
	Seed       int64     `json:"seed"`
	Policy     string    `json:"density_policy"`
	Stats      Stats     `json:"stats"`
	Events     []Event   `json:"events,omitempty"`
}

// AgentFrame is the compact per-agent view streamed to observers.
type AgentFrame struct {
	ID       agents.AgentID `json:"id"`
	Category string         `json:"category"`
	State    string         `json:"state"`
	X        float64        `json:"x"`
	Z        float64        `json:"z"`
	Beacon   uint32         `json:"beacon,omitempty"`
	Guided   bool           `json:"guided,omitempty"`
}

// Frame is one observable tick.
type Frame struct {
	RunID  string        `json:"run_id"`
	Tick   uint64        `json:"tick"`
	Time   float64       `json:"time"`
	Agents []AgentFrame  `json:"agents"`
	Fire   []hazard.Node `json:"fire,omitempty"`
	Stats  Stats         `json:"stats"`
}

func copyStats(st Stats) Stats {
	out := st
	out.ByCategory = make(map[string]int, len(st.ByCategory))
	for k, v := range st.ByCategory {
		out.ByCategory[k] = v
	}
	return out
}

// Snapshot returns the current run status.
func (s *Simulation) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		RunID:     s.RunID,
		StartedAt: s.StartedAt,
		Tick:      s.Tick,
		Time:      s.Clock,
		SimTime:   SimTime(s.Clock),
		Alarm:     s.Alarm.Triggered(),
		Timers:    s.timers.Pending(),
		Policy:    density.PolicyName(s.Density.Config().Policy),
		Stats:     copyStats(s.stats),
	}
}

// Report returns the report of the current run so far.
func (s *Simulation) Report() RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked()
}

func (s *Simulation) reportLocked() RunReport {
	return RunReport{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		EndedAt:    time.Now(),
		Ticks:      s.Tick,
		SimSeconds: s.Clock,
		Seed:       s.setup.Seed,
		Policy:     density.PolicyName(s.Density.Config().Policy),
		Stats:      copyStats(s.stats),
		Events:     append([]Event(nil), s.events...),
	}
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns all retained events.
func (s *Simulation) Events(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	return append([]Event(nil), s.events[start:]...)
}

// Frame captures the positions of every live agent and fire node.
func (s *Simulation) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.Agents.All()
	f := Frame{
		RunID:  s.RunID,
		Tick:   s.Tick,
		Time:   s.Clock,
		Agents: make([]AgentFrame, 0, len(live)),
		Fire:   s.Hazard.Nodes(),
		Stats:  copyStats(s.stats),
	}
	for _, a := range live {
		f.Agents = append(f.Agents, AgentFrame{
			ID:       a.ID,
			Category: agents.CategoryName(a.Category),
			State:    agents.StateName(a.State),
			X:        a.Position.X,
			Z:        a.Position.Z,
			Beacon:   uint32(a.TargetBeacon),
			Guided:   a.BeingGuided,
		})
	}
	return f
}

// AgentList returns copies of every live agent ordered by ID.
func (s *Simulation) AgentList() []agents.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.Agents.All()
	out := make([]agents.Agent, 0, len(live))
	for _, a := range live {
		out = append(out, copyAgent(a))
	}
	return out
}

// Agent returns a copy of the live agent with id.
func (s *Simulation) Agent(id agents.AgentID) (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.Agents.Get(id)
	if a == nil {
		return agents.Agent{}, false
	}
	return copyAgent(a), true
}

func copyAgent(a *agents.Agent) agents.Agent {
	c := *a
	c.Visited = append(c.Visited[:0:0], a.Visited...)
	if a.WanderBounds != nil {
		b := *a.WanderBounds
		c.WanderBounds = &b
	}
	return c
}

// HazardNodes returns the fire nodes in ignition order.
func (s *Simulation) HazardNodes() []hazard.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Hazard.Nodes()
}

// DensityCells returns the occupied density tiles.
func (s *Simulation) DensityCells() []density.CellInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Density.Cells()
}
