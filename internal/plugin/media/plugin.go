package media

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/plugin/poll"
	"github.com/parleychat/parley/pkg/protocol"
)

const (
	// tickInterval drives every playback transition.
	tickInterval = time.Second
	// skipGrace is the remaining-time threshold below which non-owners
	// cannot force a vote; the item ends soon anyway.
	skipGrace = 30 * time.Second
	// skipVoteTimeout bounds the skip vote.
	skipVoteTimeout = 15 * time.Second
)

var mediaActionPattern = regexp.MustCompile(`^(sync|list|shuffle|skip|flush)$`)

// SyncState is the yt-sync payload. A nil state (JSON null) deactivates the
// client player.
type SyncState struct {
	Submitter string  `json:"submitter"`
	Item      Item    `json:"item"`
	StartedAt int64   `json:"startedAt"`
	Cursor    float64 `json:"cursor"`
}

// Plugin is the per-room playback plugin tying the queue, the player, and
// the skip-vote flow together.
type Plugin struct {
	room     *chat.Room
	resolver Resolver
	queue    *Queue
	player   *Player

	mu             sync.Mutex
	skipInProgress bool

	stop chan struct{}
	once sync.Once
}

func New(room *chat.Room, resolver Resolver) chat.Plugin {
	p := &Plugin{
		room:     room,
		resolver: resolver,
		queue:    NewQueue(),
		stop:     make(chan struct{}),
	}
	p.player = NewPlayer(p.queue)
	go p.runTicks()
	return p
}

func (p *Plugin) Name() string      { return "media" }
func (p *Plugin) Aliases() []string { return []string{"play", "~"} }

func (p *Plugin) Rules() map[string]*chat.Rule {
	playRule := &chat.Rule{
		MinCount:       1,
		MaxCount:       chat.NoLimit,
		MinRight:       chat.RightGuest,
		Cooldown:       time.Second,
		MaxCallsPer10s: 5,
		Params:         []chat.Param{{Name: "media id", Pattern: regexp.MustCompile(`.`)}},
	}
	return map[string]*chat.Rule{
		"media": {
			MinCount:       1,
			MaxCount:       1,
			MinRight:       chat.RightGuest,
			MaxCallsPer10s: 10,
			Params:         []chat.Param{{Name: "action", Pattern: mediaActionPattern}},
		},
		"play": playRule,
		"~":    playRule,
	}
}

func (p *Plugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	switch alias {
	case "play", "~":
		return p.handlePlay(ctx, param, c)
	case "media":
		return p.handleAction(param, c)
	}
	return chat.NotFoundf("unknown media command %q", alias)
}

// Queue exposes the pending submissions, mainly for tests and diagnostics.
func (p *Plugin) Queue() *Queue { return p.queue }

// Player exposes the playback machine.
func (p *Plugin) Player() *Player { return p.player }

// Close stops the tick loop.
func (p *Plugin) Close() {
	p.once.Do(func() { close(p.stop) })
}

func (p *Plugin) handlePlay(ctx context.Context, param string, c *chat.Connection) error {
	item, err := p.resolver.Resolve(ctx, param)
	if err != nil {
		return chat.NotFoundf("no result found for %q", strings.TrimSpace(param))
	}
	// The lookup suspended us; the submitter may have left the room since.
	if c.Room() != p.room {
		return chat.Statef("you are no longer in the room this media was queued for")
	}
	p.queue.Push(c.Session().Identifier(), item)
	p.syncRoom()
	return nil
}

func (p *Plugin) handleAction(param string, c *chat.Connection) error {
	switch strings.TrimSpace(param) {
	case "sync":
		p.syncConnection(c)
		return nil
	case "list":
		return p.handleList(c)
	case "shuffle":
		p.queue.Shuffle()
		p.syncRoom()
		return nil
	case "skip":
		return p.handleSkip(c)
	case "flush":
		if !p.room.Manager().IsOP(c.Session()) {
			return chat.Permissionf("you need to be an operator to flush the queue")
		}
		p.queue.Flush()
		p.syncRoom()
		return nil
	}
	return chat.Validationf("invalid value for parameter %q", "action")
}

func (p *Plugin) handleList(c *chat.Connection) error {
	entries := p.queue.Entries()
	var b strings.Builder
	b.WriteString("Items in the queue:")
	for _, entry := range entries {
		fmt.Fprintf(&b, "\n - %s, added by %s", entry.Item.Title, entry.Submitter)
	}
	if len(entries) == 0 {
		b.WriteString(" none")
	}
	c.SendInfo(b.String())
	return nil
}

// handleSkip applies the advancement rules: the item's owner, an operator,
// or anyone once the submitter has left the room may skip unconditionally.
// Everyone else triggers a room vote, one at a time, and only while enough
// playtime remains.
func (p *Plugin) handleSkip(c *chat.Connection) error {
	current := p.player.Current()
	if current == nil {
		return nil
	}
	session := c.Session()
	if p.room.Manager().IsOP(session) ||
		current.Submitter == session.Identifier() ||
		!p.room.ContainsIdentifier(current.Submitter) {
		p.player.Skip()
		return nil
	}

	if time.Until(current.EndsAt()) < skipGrace {
		return chat.Statef("you can't skip this item, it will end soon anyway")
	}

	p.mu.Lock()
	if p.skipInProgress {
		p.mu.Unlock()
		return chat.Statef("a vote to skip the current item is already in progress")
	}
	p.skipInProgress = true
	p.mu.Unlock()

	pollPlugin, ok := p.room.GetPlugin("poll")
	if !ok {
		p.clearSkipVote()
		return chat.Statef("the poll plugin is not enabled in this room")
	}
	voter, ok := pollPlugin.(*poll.Plugin)
	if !ok {
		p.clearSkipVote()
		return chat.Statef("the poll plugin is not enabled in this room")
	}

	vote, err := voter.Poll("Skip "+current.Item.Title, "Do you want to skip the current item?", poll.Options{
		Timeout:      skipVoteTimeout,
		DefaultValue: false,
	})
	if err != nil {
		p.clearSkipVote()
		return err
	}

	go func() {
		defer p.clearSkipVote()
		skip, err := vote.Wait(context.Background())
		if err != nil {
			return
		}
		if skip {
			p.player.Skip()
		}
	}()
	return nil
}

func (p *Plugin) clearSkipVote() {
	p.mu.Lock()
	p.skipInProgress = false
	p.mu.Unlock()
}

// OnConnectionJoinedRoom brings a joining client's player in sync.
func (p *Plugin) OnConnectionJoinedRoom(c *chat.Connection) {
	p.syncConnection(c)
}

func (p *Plugin) runTicks() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.tick(now)
		}
	}
}

func (p *Plugin) tick(now time.Time) {
	started, stopped := p.player.Advance(now)
	if started != nil {
		p.room.SendMessage(context.Background(),
			fmt.Sprintf("Now playing: %s, added by %s", started.Item.Title, started.Submitter),
			chat.NewNeutralUser(), nil)
		p.syncRoom()
		return
	}
	if stopped {
		p.syncRoom()
	}
}

func (p *Plugin) syncRoom() {
	for _, c := range p.room.Connections() {
		p.syncConnection(c)
	}
}

// syncConnection pushes the playback state to one client. Idle players sync
// as null, which deactivates the client player.
func (p *Plugin) syncConnection(c *chat.Connection) {
	current := p.player.Current()
	if current == nil {
		c.Send(protocol.OutMediaSync, nil)
		return
	}
	c.Send(protocol.OutMediaSync, SyncState{
		Submitter: current.Submitter,
		Item:      current.Item,
		StartedAt: current.StartedAt.Unix(),
		Cursor:    time.Since(current.StartedAt).Seconds(),
	})
}
