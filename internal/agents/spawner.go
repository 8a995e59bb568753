// Agent creation: draws a category from the configured mix and generates
// category-dependent traits.
package agents

import (
	"math/rand"

	"github.com/talgya/evacsim/internal/world"
)

// Mix weights the categories of a spawned population. Weights need not sum to 1.
type Mix [NumCategories]float64

// DefaultMix is a typical office floor: mostly adults, a few visitors with
// reduced mobility or sight.
func DefaultMix() Mix {
	return Mix{
		CategoryAdult:    0.70,
		CategoryChild:    0.08,
		CategoryElderly:  0.10,
		CategoryDisabled: 0.06,
		CategoryBlind:    0.06,
	}
}

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
	mix    Mix
}

// NewSpawner creates an agent spawner with the given seed and category mix.
func NewSpawner(seed int64, mix Mix) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
		mix:    mix,
	}
}

// Rand exposes the spawner's random source for placement decisions that
// should share its seed.
func (s *Spawner) Rand() *rand.Rand { return s.rng }

// CreateAgent builds an agent of category c at position with freshly
// generated traits. IDs are never reused within a process.
func (s *Spawner) CreateAgent(c Category, position world.Vec3) *Agent {
	id := s.nextID
	s.nextID++

	a := &Agent{
		ID:       id,
		State:    StateWorking,
		Position: position,
	}
	a.Initialize(c, s.GenerateTraits(c))
	return a
}

// RandomCategory draws a category from the mix.
func (s *Spawner) RandomCategory() Category {
	total := 0.0
	for _, w := range s.mix {
		total += w
	}
	if total <= 0 {
		return CategoryAdult
	}
	r := s.rng.Float64() * total
	for i, w := range s.mix {
		if r < w {
			return Category(i)
		}
		r -= w
	}
	return CategoryAdult
}

// GenerateTraits draws uniform traits within the category's ranges.
func (s *Spawner) GenerateTraits(c Category) Traits {
	switch c {
	case CategoryChild:
		// Slower, distracted, good hearing.
		return Traits{
			MoveSpeed:    s.between(2.5, 4.0),
			VisionRange:  s.between(8, 12),
			HearingRange: s.between(10, 14),
			ReactionTime: s.between(0.8, 1.5),
		}
	case CategoryElderly:
		return Traits{
			MoveSpeed:    s.between(1.5, 2.5),
			VisionRange:  s.between(5, 10),
			HearingRange: s.between(4, 8),
			ReactionTime: s.between(1.5, 3.0),
		}
	case CategoryDisabled:
		return Traits{
			MoveSpeed:    s.between(1.0, 2.0),
			VisionRange:  s.between(10, 15),
			HearingRange: s.between(8, 12),
			ReactionTime: s.between(1.0, 2.0),
		}
	case CategoryBlind:
		// No sight at all; relies on hearing a guide.
		return Traits{
			MoveSpeed:    s.between(1.5, 2.5),
			VisionRange:  0,
			HearingRange: s.between(15, 25),
			ReactionTime: s.between(0.5, 1.0),
		}
	default:
		return Traits{
			MoveSpeed:    s.between(3.5, 5.0),
			VisionRange:  s.between(10, 15),
			HearingRange: s.between(8, 12),
			ReactionTime: s.between(0.5, 1.0),
		}
	}
}

func (s *Spawner) between(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
