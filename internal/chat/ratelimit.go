package chat

import (
	"sync"
	"time"
)

// slidingWindow is the span the per-command call cap is measured over.
const slidingWindow = 10 * time.Second

type rateEntry struct {
	lastCall time.Time
	calls    []time.Time
	cleanup  *time.Timer
}

// rateLimiter tracks per-(alias, session) invocation history for cooldown and
// sliding-window enforcement. Entries expire on their own once idle.
type rateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateEntry
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{entries: make(map[string]*rateEntry)}
}

// Check enforces the rule's rate controls for one invocation at the given
// instant and records it when allowed. The explicit timestamp keeps the
// limiter deterministic under test.
func (l *rateLimiter) Check(alias, identifier string, rule *Rule, now time.Time) error {
	if rule == nil || (rule.Cooldown <= 0 && rule.MaxCallsPer10s <= 0) {
		return nil
	}
	key := alias + "|" + identifier

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, found := l.entries[key]
	if !found {
		entry = &rateEntry{}
		l.entries[key] = entry
	}

	if rule.Cooldown > 0 && !entry.lastCall.IsZero() && now.Sub(entry.lastCall) < rule.Cooldown {
		return RateLimitf("command %q is on cooldown", alias)
	}

	if rule.MaxCallsPer10s > 0 {
		kept := entry.calls[:0]
		for _, t := range entry.calls {
			if now.Sub(t) < slidingWindow {
				kept = append(kept, t)
			}
		}
		entry.calls = kept
		if len(entry.calls) >= rule.MaxCallsPer10s {
			return RateLimitf("command %q called too often", alias)
		}
		entry.calls = append(entry.calls, now)
	}

	entry.lastCall = now
	l.scheduleCleanupLocked(key, entry, rule)
	return nil
}

func (l *rateLimiter) scheduleCleanupLocked(key string, entry *rateEntry, rule *Rule) {
	retain := slidingWindow
	if rule.Cooldown > retain {
		retain = rule.Cooldown
	}
	if entry.cleanup != nil {
		entry.cleanup.Stop()
	}
	entry.cleanup = time.AfterFunc(retain, func() {
		l.mu.Lock()
		delete(l.entries, key)
		l.mu.Unlock()
	})
}
