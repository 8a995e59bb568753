// Simulation ties together all evacuation systems and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/alarm"
	"github.com/talgya/evacsim/internal/density"
	"github.com/talgya/evacsim/internal/hazard"
	"github.com/talgya/evacsim/internal/nav"
	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

// MaxEvents bounds the in-memory event log.
const MaxEvents = 1000

// Setup is everything a Simulation is built from. The config package
// produces one from a scenario file.
type Setup struct {
	Plan        *world.FloorPlan
	Routes      *waypoint.Graph
	HazardZones []world.Bounds
	SpawnArea   world.Bounds
	Clutter     *world.GenConfig // nil leaves the plan as given

	Mix               agents.Mix
	MaxAttempts       int     // Spawn attempts per agent
	SpawnSampleRadius float64 // Snap radius for spawn candidates
	ConfineWander     bool    // Keep working agents inside the spawn area

	NavCellSize   float64
	ContactRadius float64

	Decision agents.Params
	Hazard   hazard.Config
	Density  density.Config

	Seed int64
}

// Event is a notable occurrence during a run.
type Event struct {
	Tick        uint64         `json:"tick"`
	Time        float64        `json:"time"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "fire", "alarm", "beacon", "evacuated", "density", ...
	Agent       agents.AgentID `json:"agent,omitempty"`
}

// Stats tracks aggregate run statistics.
type Stats struct {
	Requested      int            `json:"requested"`
	Spawned        int            `json:"spawned"`
	Alive          int            `json:"alive"`
	Working        int            `json:"working"`
	Evacuating     int            `json:"evacuating"`
	Evacuated      int            `json:"evacuated"`
	Removed        int            `json:"removed"`
	Slowed         int            `json:"slowed"`
	HazardNodes    int            `json:"hazard_nodes"`
	FireStarted    bool           `json:"fire_started"`
	FireStartedAt  float64        `json:"fire_started_at,omitempty"`
	LastEvacuation float64        `json:"last_evacuation,omitempty"` // Seconds after ignition
	ByCategory     map[string]int `json:"by_category"`
}

// Simulation is the context object owning every subsystem of one floor. All
// exported methods are safe for concurrent use; ticks and control calls are
// serialized.
type Simulation struct {
	mu sync.Mutex

	setup Setup

	Plan    *world.FloorPlan
	Routes  *waypoint.Graph
	Nav     *nav.Grid
	Alarm   *alarm.Bus
	Hazard  *hazard.Model
	Density *density.Grid
	Agents  *agents.Registry
	Spawner *agents.Spawner
	Decider *agents.Decider

	timers   *Scheduler
	contacts map[contactKey]bool

	RunID     string
	StartedAt time.Time
	Tick      uint64
	Clock     float64 // Simulated seconds since the run started

	// OnRunEnd receives the report of a run when it is reset. It runs with
	// the simulation locked and must not call back into it.
	OnRunEnd func(RunReport)

	lastRequested int
	events        []Event
	stats         Stats
}

// NewSimulation builds a simulation from setup. No agents are spawned.
func NewSimulation(setup Setup) (*Simulation, error) {
	if setup.Plan == nil {
		return nil, fmt.Errorf("%w: no floor plan", ErrConfiguration)
	}
	if setup.Routes == nil {
		return nil, fmt.Errorf("%w: no route graph", ErrConfiguration)
	}
	if setup.MaxAttempts <= 0 {
		setup.MaxAttempts = 200
	}
	if setup.ContactRadius <= 0 {
		setup.ContactRadius = 1
	}

	if setup.Clutter != nil {
		placed := world.GenerateClutter(setup.Plan, *setup.Clutter)
		slog.Info("clutter generated", "pieces", placed, "plan", setup.Plan.String())
	}

	grid, err := nav.NewGrid(setup.Plan, setup.NavCellSize)
	if err != nil {
		return nil, fmt.Errorf("%w: navigation grid: %v", ErrConfiguration, err)
	}

	s := &Simulation{
		setup:    setup,
		Plan:     setup.Plan,
		Routes:   setup.Routes,
		Nav:      grid,
		Alarm:    alarm.NewBus(),
		Density:  density.NewGrid(setup.Density, setup.Seed),
		Agents:   agents.NewRegistry(),
		Spawner:  agents.NewSpawner(setup.Seed, setup.Mix),
		timers:   NewScheduler(),
		contacts: make(map[contactKey]bool),
	}
	s.Hazard = hazard.NewModel(setup.Hazard, setup.HazardZones, grid, s.Alarm, setup.Seed)
	s.Decider = agents.NewDecider(grid, setup.Plan, setup.Routes, s.Hazard, s.Agents, setup.Decision, setup.Seed)
	s.Decider.OnEvent = func(a *agents.Agent, category, detail string) {
		if category == "evacuated" || category == "guide" {
			s.emit(category, fmt.Sprintf("%s %s", a, detail), a.ID)
		}
	}
	s.newRun()
	return s, nil
}

func (s *Simulation) newRun() {
	s.RunID = uuid.NewString()
	s.StartedAt = time.Now()
	s.Tick = 0
	s.Clock = 0
	s.events = nil
	s.stats = Stats{ByCategory: make(map[string]int)}
}

// emit appends to the bounded event log. Callers hold s.mu.
func (s *Simulation) emit(category, description string, agent agents.AgentID) {
	s.events = append(s.events, Event{
		Tick:        s.Tick,
		Time:        s.Clock,
		Description: description,
		Category:    category,
		Agent:       agent,
	})
	if len(s.events) > MaxEvents {
		s.events = s.events[len(s.events)-MaxEvents:]
	}
}

// TickFrame advances the simulation by dt seconds. Order within a tick:
// timers, agent decisions, movement, position sync, contacts, crowding, stats.
func (s *Simulation) TickFrame(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Tick++
	s.Clock += dt
	s.timers.Advance(s.Clock)

	for _, a := range s.Agents.All() {
		if s.Agents.Get(a.ID) == nil {
			continue
		}
		if s.Decider.Update(a, dt) == agents.OutcomeEvacuated {
			s.evacuate(a)
		}
	}

	s.Nav.Advance(dt)
	live := s.Agents.All()
	for _, a := range live {
		a.Position = s.Nav.Position(a.Handle())
	}

	s.shareOnContact(live)
	s.applyCrowding(dt, live)
	s.refreshStats()
}

func (s *Simulation) evacuate(a *agents.Agent) {
	s.stats.Evacuated++
	if s.stats.FireStarted {
		s.stats.LastEvacuation = s.Clock - s.stats.FireStartedAt
	}
	s.removeAgent(a)
}

// removeAgent takes a out of every subsystem. Blind agents following a keep
// its final position so they can tell whether it reached safety.
func (s *Simulation) removeAgent(a *agents.Agent) {
	s.timers.CancelOwner(Owner(a.ID))
	s.Alarm.Unsubscribe(uint64(a.ID))
	s.Nav.Remove(a.Handle())
	s.Agents.Remove(a.ID)
	s.forgetContacts(a.ID)

	for _, other := range s.Agents.ByCategory(agents.CategoryBlind) {
		if other.GuideID == a.ID {
			other.GuideLastPos = a.Position
		}
	}
}

// crowdTarget lets the density grid act on live agents.
type crowdTarget struct{ s *Simulation }

func (t crowdTarget) RemoveAgent(id uint64) {
	a := t.s.Agents.Get(agents.AgentID(id))
	if a == nil {
		return
	}
	t.s.emit("density", fmt.Sprintf("%s removed by crowding", a), a.ID)
	t.s.removeAgent(a)
}

func (t crowdTarget) Speed(id uint64) float64 {
	return t.s.Nav.Speed(nav.Handle(id))
}

func (t crowdTarget) SetSpeed(id uint64, speed float64) {
	h := nav.Handle(id)
	if t.s.Nav.Speed(h) == speed {
		return
	}
	t.s.Nav.SetSpeed(h, speed)
	t.s.emit("density", fmt.Sprintf("agent-%d slowed to %.1f by crowding", id, speed), agents.AgentID(id))
}

func (s *Simulation) applyCrowding(dt float64, live []*agents.Agent) {
	occ := make([]density.Occupant, 0, len(live))
	for _, a := range live {
		occ = append(occ, density.Occupant{ID: uint64(a.ID), Pos: a.Position})
	}
	s.Density.Update(dt, occ, crowdTarget{s})
}

func (s *Simulation) refreshStats() {
	st := &s.stats
	st.Alive = s.Agents.Len()
	st.Evacuating = s.Agents.EvacuatingCount()
	st.Working = st.Alive - st.Evacuating
	st.Removed = s.Density.Removed()
	st.Slowed = s.Density.Slowed()
	st.HazardNodes = s.Hazard.Count()
	for c := agents.Category(0); c < agents.NumCategories; c++ {
		st.ByCategory[agents.CategoryName(c)] = s.Agents.CountByCategory(c)
	}
}

// LogReport writes a periodic summary line.
func (s *Simulation) LogReport() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	slog.Info("evacuation report",
		"run", s.RunID,
		"tick", s.Tick,
		"time", SimTime(s.Clock),
		"alive", humanize.Comma(int64(st.Alive)),
		"working", st.Working,
		"evacuating", st.Evacuating,
		"evacuated", humanize.Comma(int64(st.Evacuated)),
		"removed", st.Removed,
		"slowed", st.Slowed,
		"fire_nodes", st.HazardNodes,
		"timers", s.timers.Pending(),
		"started", humanize.Time(s.StartedAt),
	)
}
