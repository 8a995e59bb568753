// Package alarm provides the building-wide fire alarm: a one-shot
// publish/subscribe broadcaster owned by the simulation context.
package alarm

import (
	"log/slog"

	"github.com/talgya/evacsim/internal/world"
)

// Handler receives the alarm trigger position.
type Handler func(pos world.Vec3)

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus broadcasts a single alarm per run to its subscribers.
type Bus struct {
	triggered bool
	position  world.Vec3
	subs      []subscriber
	index     map[uint64]int // subscriber id → position in subs
}

// NewBus creates an untriggered bus.
func NewBus() *Bus {
	return &Bus{index: make(map[uint64]int)}
}

// Subscribe registers h under id. Subscribing an existing id replaces its
// handler and keeps its place in the notification order.
func (b *Bus) Subscribe(id uint64, h Handler) {
	if i, ok := b.index[id]; ok {
		b.subs[i].handler = h
		return
	}
	b.index[id] = len(b.subs)
	b.subs = append(b.subs, subscriber{id: id, handler: h})
}

// Unsubscribe removes id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	i, ok := b.index[id]
	if !ok {
		return
	}
	copy(b.subs[i:], b.subs[i+1:])
	b.subs = b.subs[:len(b.subs)-1]
	delete(b.index, id)
	for j := i; j < len(b.subs); j++ {
		b.index[b.subs[j].id] = j
	}
}

// Trigger raises the alarm at pos and synchronously notifies every current
// subscriber in subscription order. While already triggered it is a no-op.
// Returns the number of subscribers notified.
func (b *Bus) Trigger(pos world.Vec3) int {
	if b.triggered {
		return 0
	}
	b.triggered = true
	b.position = pos
	slog.Info("alarm triggered", "position", pos.String(), "subscribers", len(b.subs))

	// Handlers may unsubscribe while we notify.
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	for _, s := range subs {
		s.handler(pos)
	}
	return len(subs)
}

// Reset clears the triggered flag and drops every subscriber; they must
// subscribe again for the next run.
func (b *Bus) Reset() {
	b.triggered = false
	b.position = world.Zero
	b.subs = nil
	b.index = make(map[uint64]int)
	slog.Debug("alarm reset")
}

// Triggered reports whether the alarm has been raised this run.
func (b *Bus) Triggered() bool { return b.triggered }

// Position returns where the alarm was raised.
func (b *Bus) Position() world.Vec3 { return b.position }

// Len returns the subscriber count.
func (b *Bus) Len() int { return len(b.subs) }
