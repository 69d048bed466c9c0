package media

import (
	"sync"
	"time"
)

// endLag is the slack past an item's computed end before the player flips
// back to idle, absorbing client-side buffering.
const endLag = 2 * time.Second

// Current is the item being played and when it started.
type Current struct {
	Entry
	StartedAt time.Time
}

// EndsAt is the derived end of playback, excluding lag.
func (c Current) EndsAt() time.Time {
	return c.StartedAt.Add(c.Item.Duration)
}

// Player is the playback state machine. It is either idle or playing one
// item; every transition happens inside Advance, which a periodic tick
// drives. Keeping Advance pure over an explicit timestamp makes the machine
// deterministic under test.
type Player struct {
	queue *Queue

	mu      sync.Mutex
	current *Current
}

func NewPlayer(queue *Queue) *Player {
	return &Player{queue: queue}
}

// Current returns a copy of the playing item, or nil when idle.
func (p *Player) Current() *Current {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	snapshot := *p.current
	return &snapshot
}

// Skip zeroes the current start timestamp so the next tick ends the item
// immediately.
func (p *Player) Skip() {
	p.mu.Lock()
	if p.current != nil {
		p.current.StartedAt = time.Unix(0, 0)
	}
	p.mu.Unlock()
}

// Advance transitions the machine for one tick at the given instant. A
// finished item flips the player to idle and, when the queue holds more
// work, immediately back to playing with a fresh start timestamp.
// It returns the item that started, if any, and whether the player emptied
// out this tick.
func (p *Player) Advance(now time.Time) (started *Current, stopped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		if now.Before(p.current.StartedAt.Add(p.current.Item.Duration + endLag)) {
			return nil, false
		}
		p.current = nil
		stopped = true
	}

	next, ok := p.queue.Shift()
	if !ok {
		return nil, stopped
	}
	p.current = &Current{Entry: next, StartedAt: now}
	snapshot := *p.current
	return &snapshot, false
}
