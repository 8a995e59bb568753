package engine

import "container/heap"

// Owner keys a group of timers so they can be cancelled together. Agent
// timers use the agent ID; system timers use the reserved keys below.
type Owner uint64

// OwnerHazard owns the fire spread timer.
const OwnerHazard Owner = 1 << 63

type timer struct {
	due   float64
	seq   uint64
	owner Owner
	fn    func()
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler holds deferred callbacks in simulated seconds. It has no
// goroutines of its own; the tick loop drives it through Advance.
type Scheduler struct {
	h   timerHeap
	seq uint64
	now float64
}

// NewScheduler returns an empty scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the time of the last Advance.
func (s *Scheduler) Now() float64 { return s.now }

// After runs fn once delay seconds from now. Negative delays fire on the
// next Advance.
func (s *Scheduler) After(owner Owner, delay float64, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	heap.Push(&s.h, &timer{due: s.now + delay, seq: s.seq, owner: owner, fn: fn})
}

// CancelOwner drops every pending timer of owner and returns how many.
func (s *Scheduler) CancelOwner(owner Owner) int {
	kept := s.h[:0]
	dropped := 0
	for _, t := range s.h {
		if t.owner == owner {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.h); i++ {
		s.h[i] = nil
	}
	s.h = kept
	if dropped > 0 {
		heap.Init(&s.h)
	}
	return dropped
}

// CancelAll drops every pending timer.
func (s *Scheduler) CancelAll() int {
	n := len(s.h)
	s.h = nil
	return n
}

// Reset cancels everything and rewinds the clock to zero.
func (s *Scheduler) Reset() {
	s.CancelAll()
	s.now = 0
}

// Advance moves the clock to now and fires every timer due at or before it,
// in due-time order with ties broken by scheduling order. Timers scheduled by
// a callback that are already due fire in the same call.
func (s *Scheduler) Advance(now float64) int {
	if now > s.now {
		s.now = now
	}
	fired := 0
	for len(s.h) > 0 && s.h[0].due <= s.now {
		t := heap.Pop(&s.h).(*timer)
		t.fn()
		fired++
	}
	return fired
}

// Pending returns the number of timers waiting to fire.
func (s *Scheduler) Pending() int { return len(s.h) }

// PendingFor returns the number of timers waiting for owner.
func (s *Scheduler) PendingFor(owner Owner) int {
	n := 0
	for _, t := range s.h {
		if t.owner == owner {
			n++
		}
	}
	return n
}
