// Control surface: fire, spawn and reset, as called by the API and main.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/hazard"
	"github.com/talgya/evacsim/internal/world"
)

// StartFire ignites the fire and raises the alarm. It reports false with no
// error when the fire is already burning.
func (s *Simulation) StartFire() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.Hazard.Ignite(s.Clock)
	switch {
	case errors.Is(err, hazard.ErrAlreadyIgnited):
		return false, nil
	case errors.Is(err, hazard.ErrNoHazardZones), errors.Is(err, hazard.ErrNoNavigationMap):
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	case err != nil:
		return false, err
	}

	s.stats.FireStarted = true
	s.stats.FireStartedAt = s.Clock
	s.emit("fire", fmt.Sprintf("fire started at %s, %d agents alerted", node.Position, s.Alarm.Len()), agents.NoAgent)
	s.scheduleSpread()
	return true, nil
}

func (s *Simulation) scheduleSpread() {
	s.timers.After(OwnerHazard, s.Hazard.Config().SpreadInterval, func() {
		if s.Hazard.Count() >= s.Hazard.Config().MaxNodes {
			slog.Info("fire reached its node cap", "nodes", s.Hazard.Count())
			return
		}
		if n, ok := s.Hazard.SpreadStep(s.Clock); ok {
			s.emit("fire", fmt.Sprintf("fire spread to %s", n.Position), agents.NoAgent)
		}
		s.scheduleSpread()
	})
}

// SpawnAgents replaces the population with count new agents at random
// navigable points of the spawn area. When a point cannot be found within
// the attempt budget the batch stops and a *SpawnError reports how many
// were placed.
func (s *Simulation) SpawnAgents(count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(count)
}

func (s *Simulation) spawnLocked(count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%w: spawn count must be positive, got %d", ErrInvalidInput, count)
	}
	if s.Spawner == nil {
		return 0, fmt.Errorf("%w: no agent spawner", ErrConfiguration)
	}

	for _, a := range s.Agents.All() {
		s.removeAgent(a)
	}
	s.lastRequested = count
	s.stats.Requested = count
	s.stats.Spawned = 0

	rng := s.Spawner.Rand()
	area := s.setup.SpawnArea
	y := area.Center().Y
	spawned := 0
	for i := 0; i < count; i++ {
		pos, ok := s.findSpawnPoint(area, y, rng.Float64)
		if !ok {
			err := &SpawnError{Requested: count, Spawned: spawned, Attempts: s.setup.MaxAttempts}
			slog.Warn("spawn aborted", "requested", count, "spawned", spawned, "attempts", s.setup.MaxAttempts)
			s.emit("spawn", err.Error(), agents.NoAgent)
			s.refreshStats()
			return spawned, err
		}
		s.addAgent(s.Spawner.RandomCategory(), pos)
		spawned++
	}

	s.emit("spawn", fmt.Sprintf("spawned %s agents", humanize.Comma(int64(spawned))), agents.NoAgent)
	slog.Info("agents spawned", "count", spawned, "run", s.RunID)
	s.refreshStats()
	return spawned, nil
}

func (s *Simulation) findSpawnPoint(area world.Bounds, y float64, rnd func() float64) (world.Vec3, bool) {
	size := area.Size()
	for attempt := 0; attempt < s.setup.MaxAttempts; attempt++ {
		candidate := world.V(area.Min.X+rnd()*size.X, y, area.Min.Z+rnd()*size.Z)
		if hit, ok := s.Nav.SampleNavigable(candidate, s.setup.SpawnSampleRadius); ok {
			return hit, true
		}
	}
	return world.Zero, false
}

// addAgent creates, registers and subscribes one agent. Callers hold s.mu.
func (s *Simulation) addAgent(c agents.Category, pos world.Vec3) *agents.Agent {
	a := s.Spawner.CreateAgent(c, pos)
	if s.setup.ConfineWander {
		a.SetWanderBounds(s.setup.SpawnArea)
	}
	s.Agents.Add(a)
	s.Nav.Register(a.Handle(), pos, a.Traits.MoveSpeed)
	s.stats.Spawned++

	s.Alarm.Subscribe(uint64(a.ID), func(world.Vec3) {
		a.ReactionPending = true
		s.timers.After(Owner(a.ID), a.Traits.ReactionTime, func() {
			if s.Agents.Get(a.ID) == nil {
				return
			}
			s.Decider.BeginEvacuation(a, s.Clock)
		})
	})
	s.Decider.StartWandering(a)
	return a
}

// ResetSimulation hands the finished run to OnRunEnd, cancels every pending
// timer, clears all run state, starts a new run and respawns the last
// requested population. It returns the respawned count.
func (s *Simulation) ResetSimulation() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.OnRunEnd != nil {
		s.OnRunEnd(s.reportLocked())
	}

	cancelled := s.timers.CancelAll()
	for _, a := range s.Agents.All() {
		s.removeAgent(a)
	}
	s.Agents.Clear()
	s.Alarm.Reset()
	s.Hazard.Reset()
	s.Density.Reset()
	s.Nav.Reset()
	s.timers.Reset()
	s.contacts = make(map[contactKey]bool)

	prev := s.RunID
	s.newRun()
	slog.Info("simulation reset", "previous_run", prev, "run", s.RunID, "timers_cancelled", cancelled)
	s.emit("reset", "simulation reset", agents.NoAgent)

	if s.lastRequested == 0 {
		return 0, nil
	}
	return s.spawnLocked(s.lastRequested)
}
