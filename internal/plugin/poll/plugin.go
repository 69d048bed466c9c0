package poll

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/protocol"
)

// DefaultTimeout bounds polls started from the command surface.
const DefaultTimeout = 30 * time.Second

var votePattern = regexp.MustCompile(`^(y|n)$`)

// Plugin exposes the voting primitive per room. Only one poll may be active
// per plugin instance; a second request fails fast instead of queueing.
type Plugin struct {
	room *chat.Room

	mu      sync.Mutex
	current *Poll
}

func NewPlugin(room *chat.Room) chat.Plugin {
	return &Plugin{room: room}
}

func (p *Plugin) Name() string      { return "poll" }
func (p *Plugin) Aliases() []string { return []string{"vote"} }

func (p *Plugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"poll": {
			MinCount: 1,
			MaxCount: chat.NoLimit,
			Cooldown: 2 * time.Second,
		},
		"vote": {
			MinCount: 1,
			MaxCount: 1,
			MinRight: chat.RightGuest,
			Params:   []chat.Param{{Name: "choice", Pattern: votePattern}},
		},
	}
}

func (p *Plugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	switch alias {
	case "poll":
		return p.handlePoll(ctx, param, c)
	case "vote":
		return p.handleVote(param, c)
	}
	return chat.NotFoundf("unknown poll action %q", alias)
}

func (p *Plugin) handlePoll(ctx context.Context, param string, c *chat.Connection) error {
	poll, err := p.Poll(param, "Vote with /vote y or /vote n", Options{
		Timeout:      DefaultTimeout,
		DefaultValue: false,
	})
	if err != nil {
		return err
	}
	go func() {
		value, err := poll.Wait(context.Background())
		if err != nil {
			return
		}
		outcome := "no"
		if value {
			outcome = "yes"
		}
		p.room.SendMessage(context.Background(),
			fmt.Sprintf("Poll %q resolved: %s", poll.Question, outcome),
			chat.NewNeutralUser(), nil)
	}()
	return nil
}

func (p *Plugin) handleVote(param string, c *chat.Connection) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return chat.Statef("no poll is currently running")
	}
	return current.Vote(c.Session().Identifier(), param == "y")
}

// Poll starts a vote among the room's current members. It fails fast when
// one is already pending for this instance.
func (p *Plugin) Poll(question, prompt string, opts Options) (*Poll, error) {
	p.mu.Lock()
	if p.current != nil {
		if _, resolved := p.current.Result(); !resolved {
			p.mu.Unlock()
			return nil, chat.Statef("a poll is already in progress")
		}
	}

	eligible := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range p.room.Connections() {
		if s := c.Session(); s != nil {
			identifier := s.Identifier()
			if _, dup := seen[identifier]; !dup {
				seen[identifier] = struct{}{}
				eligible = append(eligible, identifier)
			}
		}
	}

	poll := New(question, prompt, eligible, opts)
	p.current = poll
	p.mu.Unlock()

	p.room.Send(protocol.OutPoll, map[string]any{
		"question": question,
		"prompt":   prompt,
		"deadline": poll.Deadline().Unix(),
	})

	go func() {
		<-poll.Done()
		p.mu.Lock()
		if p.current == poll {
			p.current = nil
		}
		p.mu.Unlock()
	}()
	return poll, nil
}

// Close abandons any pending poll by resolving it on its default.
func (p *Plugin) Close() {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()
	if current != nil {
		current.resolveOnDeadline()
	}
}
