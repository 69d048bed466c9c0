// Package poll provides the room-wide timeout-bound voting primitive and the
// plugin exposing it as commands.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/parleychat/parley/internal/chat"
)

// Options tunes a single poll.
type Options struct {
	Timeout      time.Duration
	DefaultValue bool
}

// Poll collects ballots from a fixed voter set until everyone has voted or
// the deadline elapses, whichever is first. Re-voting before resolution
// overwrites the prior ballot.
type Poll struct {
	Question string
	Prompt   string

	mu       sync.Mutex
	eligible map[string]struct{}
	ballots  map[string]bool
	deadline time.Time
	defaults bool
	resolved bool
	value    bool

	done  chan struct{}
	timer *time.Timer
}

// New starts a poll among the given voters. The deadline timer begins
// immediately.
func New(question, prompt string, eligible []string, opts Options) *Poll {
	p := &Poll{
		Question: question,
		Prompt:   prompt,
		eligible: make(map[string]struct{}, len(eligible)),
		ballots:  make(map[string]bool),
		deadline: time.Now().Add(opts.Timeout),
		defaults: opts.DefaultValue,
		done:     make(chan struct{}),
	}
	for _, voter := range eligible {
		p.eligible[voter] = struct{}{}
	}
	p.timer = time.AfterFunc(opts.Timeout, p.resolveOnDeadline)
	return p
}

// Vote records one ballot. Ineligible voters and late ballots fail.
func (p *Poll) Vote(voter string, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return chat.Statef("this poll is already closed")
	}
	if _, ok := p.eligible[voter]; !ok {
		return chat.Permissionf("you are not eligible to vote in this poll")
	}
	p.ballots[voter] = value
	if len(p.ballots) == len(p.eligible) {
		p.resolveLocked()
	}
	return nil
}

// Deadline returns the absolute instant the poll times out.
func (p *Poll) Deadline() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deadline
}

// Result returns the outcome and whether the poll has resolved.
func (p *Poll) Result() (value, resolved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.resolved
}

// Wait blocks until the poll resolves or ctx is cancelled.
func (p *Poll) Wait(ctx context.Context) (bool, error) {
	select {
	case <-p.done:
		value, _ := p.Result()
		return value, nil
	case <-ctx.Done():
		return p.defaults, ctx.Err()
	}
}

// Done is closed once the poll has resolved.
func (p *Poll) Done() <-chan struct{} {
	return p.done
}

func (p *Poll) resolveOnDeadline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.resolved {
		p.resolveLocked()
	}
}

// resolveLocked computes the outcome: with no ballots the default wins,
// otherwise a strict yes-majority.
func (p *Poll) resolveLocked() {
	if len(p.ballots) == 0 {
		p.value = p.defaults
	} else {
		yes, no := 0, 0
		for _, v := range p.ballots {
			if v {
				yes++
			} else {
				no++
			}
		}
		p.value = yes > no
	}
	p.resolved = true
	p.timer.Stop()
	close(p.done)
}
