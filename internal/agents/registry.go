package agents

import "sort"

// Registry is the arena of live agents. Besides the ID table it keeps
// category and evacuating indices current so peer searches do not scan every
// agent of every kind.
type Registry struct {
	agents     map[AgentID]*Agent
	byCategory [NumCategories]map[AgentID]*Agent
	evacuating map[AgentID]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Clear()
	return r
}

// Clear forgets every agent.
func (r *Registry) Clear() {
	r.agents = make(map[AgentID]*Agent)
	for i := range r.byCategory {
		r.byCategory[i] = make(map[AgentID]*Agent)
	}
	r.evacuating = make(map[AgentID]*Agent)
}

// Add files a new agent.
func (r *Registry) Add(a *Agent) {
	r.agents[a.ID] = a
	r.byCategory[a.Category][a.ID] = a
	if a.State == StateEvacuating {
		r.evacuating[a.ID] = a
	}
}

// Remove drops id and returns the agent, or nil if unknown.
func (r *Registry) Remove(id AgentID) *Agent {
	a := r.agents[id]
	if a == nil {
		return nil
	}
	delete(r.agents, id)
	delete(r.byCategory[a.Category], id)
	delete(r.evacuating, id)
	return a
}

// Get returns the live agent with id, or nil.
func (r *Registry) Get(id AgentID) *Agent {
	return r.agents[id]
}

// Len returns the live agent count.
func (r *Registry) Len() int { return len(r.agents) }

// SetState changes a's state and keeps the evacuating index in step.
func (r *Registry) SetState(a *Agent, s State) {
	a.State = s
	if _, live := r.agents[a.ID]; !live {
		return
	}
	if s == StateEvacuating {
		r.evacuating[a.ID] = a
	} else {
		delete(r.evacuating, a.ID)
	}
}

// All returns a snapshot of live agents ordered by ID. Removing agents while
// iterating the snapshot is safe.
func (r *Registry) All() []*Agent {
	return sorted(r.agents)
}

// ByCategory returns live agents of category c ordered by ID.
func (r *Registry) ByCategory(c Category) []*Agent {
	return sorted(r.byCategory[c])
}

// CountByCategory returns how many live agents are of category c.
func (r *Registry) CountByCategory(c Category) int {
	return len(r.byCategory[c])
}

// Evacuating returns live evacuating agents ordered by ID.
func (r *Registry) Evacuating() []*Agent {
	return sorted(r.evacuating)
}

// EvacuatingCount returns the number of live evacuating agents.
func (r *Registry) EvacuatingCount() int { return len(r.evacuating) }

func sorted(m map[AgentID]*Agent) []*Agent {
	out := make([]*Agent, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
