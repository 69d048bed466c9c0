// Package media implements the per-room playback plugin: a fairness-ordered
// queue of submitted items and a tick-driven state machine advancing through
// them.
package media

import (
	"math/rand"
	"sync"
	"time"
)

// Item describes one playable piece of media.
type Item struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
}

// Entry is one queued submission.
type Entry struct {
	Submitter string `json:"submitter"`
	Item      Item   `json:"item"`
}

// Queue is a fairness-ordered FIFO of submissions.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends an entry and restores fairness order.
func (q *Queue) Push(submitter string, item Item) {
	q.mu.Lock()
	q.entries = append(q.entries, Entry{Submitter: submitter, Item: item})
	q.entries = Reorder(q.entries)
	q.mu.Unlock()
}

// Shift pops the head entry.
func (q *Queue) Shift() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// Entries returns a snapshot of the pending submissions.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len reports the number of pending submissions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush drops every pending submission.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}

// Shuffle randomizes the pending order, then restores fairness.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	rand.Shuffle(len(q.entries), func(i, j int) {
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	})
	q.entries = Reorder(q.entries)
	q.mu.Unlock()
}

// Reorder interleaves submissions so no submitter holds consecutive slots
// while others still have pending items: group by submitter, then take one
// item per non-empty group in a stable round-robin. Groups cycle in the
// order each submitter's first item appears, never re-sorted.
func Reorder(entries []Entry) []Entry {
	groups := make(map[string][]Entry)
	var order []string
	for _, entry := range entries {
		if _, seen := groups[entry.Submitter]; !seen {
			order = append(order, entry.Submitter)
		}
		groups[entry.Submitter] = append(groups[entry.Submitter], entry)
	}

	out := make([]Entry, 0, len(entries))
	remaining := len(entries)
	for remaining > 0 {
		for _, submitter := range order {
			pending := groups[submitter]
			if len(pending) == 0 {
				continue
			}
			out = append(out, pending[0])
			groups[submitter] = pending[1:]
			remaining--
		}
	}
	return out
}
