package engine

import (
	"math"
	"sort"

	"github.com/talgya/evacsim/internal/agents"
)

// contactKey is an unordered agent pair, low ID first.
type contactKey struct{ a, b agents.AgentID }

func pairOf(x, y agents.AgentID) contactKey {
	if x > y {
		x, y = y, x
	}
	return contactKey{x, y}
}

type bucket struct{ x, z int }

// shareOnContact finds evacuating agents touching this tick. Only pairs that
// were not already touching last tick exchange route knowledge, once in each
// direction. Callers hold s.mu.
func (s *Simulation) shareOnContact(live []*agents.Agent) {
	r := s.setup.ContactRadius
	buckets := make(map[bucket][]*agents.Agent)
	for _, a := range live {
		if a.State != agents.StateEvacuating {
			continue
		}
		k := bucket{int(math.Floor(a.Position.X / r)), int(math.Floor(a.Position.Z / r))}
		buckets[k] = append(buckets[k], a)
	}

	current := make(map[contactKey]bool)
	var entered []contactKey
	for k, members := range buckets {
		for dx := -1; dx <= 1; dx++ {
			for dz := -1; dz <= 1; dz++ {
				for _, a := range members {
					for _, b := range buckets[bucket{k.x + dx, k.z + dz}] {
						if a.ID >= b.ID || a.Position.Flat().Dist(b.Position.Flat()) >= r {
							continue
						}
						key := pairOf(a.ID, b.ID)
						if current[key] {
							continue
						}
						current[key] = true
						if !s.contacts[key] {
							entered = append(entered, key)
						}
					}
				}
			}
		}
	}
	s.contacts = current

	sort.Slice(entered, func(i, j int) bool {
		if entered[i].a != entered[j].a {
			return entered[i].a < entered[j].a
		}
		return entered[i].b < entered[j].b
	})
	for _, key := range entered {
		a, b := s.Agents.Get(key.a), s.Agents.Get(key.b)
		if a == nil || b == nil {
			continue
		}
		if s.Decider.ShareInfo(a, b) {
			s.emit("beacon", a.String()+" learned the route from "+b.String(), a.ID)
		}
		if s.Decider.ShareInfo(b, a) {
			s.emit("beacon", b.String()+" learned the route from "+a.String(), b.ID)
		}
	}
}

func (s *Simulation) forgetContacts(id agents.AgentID) {
	for k := range s.contacts {
		if k.a == id || k.b == id {
			delete(s.contacts, k)
		}
	}
}

// Contacts returns the number of touching evacuating pairs.
func (s *Simulation) Contacts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}
