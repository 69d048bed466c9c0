// Package core holds the built-in plugins every room relies on: the default
// message command, room management, the connected-session directory, and
// operator grants.
package core

import (
	"context"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/protocol"
)

// historyReplayLimit caps how many stored messages a joining client gets.
const historyReplayLimit = 50

// HistoryStore loads a room's stored message tail.
type HistoryStore interface {
	RecentMessages(ctx context.Context, roomID int, limit int) ([]*chat.Message, error)
}

// MessagePlugin implements the default command unmarked lines are rewritten
// to, and replays the stored history to joining connections.
type MessagePlugin struct {
	room    *chat.Room
	history HistoryStore
}

func NewMessagePlugin(room *chat.Room, history HistoryStore) chat.Plugin {
	return &MessagePlugin{room: room, history: history}
}

func (p *MessagePlugin) Name() string      { return "message" }
func (p *MessagePlugin) Aliases() []string { return []string{"m"} }

func (p *MessagePlugin) Rules() map[string]*chat.Rule {
	rule := &chat.Rule{
		MinCount:       1,
		MaxCount:       chat.NoLimit,
		MinRight:       chat.RightGuest,
		MaxCallsPer10s: 20,
	}
	return map[string]*chat.Rule{"message": rule, "m": rule}
}

func (p *MessagePlugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	_, err := p.room.SendMessage(ctx, param, c.Session().User(), nil)
	return err
}

// OnConnectionJoinedRoom replays the stored tail, oldest first, to the
// joining connection only.
func (p *MessagePlugin) OnConnectionJoinedRoom(c *chat.Connection) {
	if p.history == nil {
		return
	}
	messages, err := p.history.RecentMessages(context.Background(), p.room.ID(), historyReplayLimit)
	if err != nil {
		return
	}
	for _, msg := range messages {
		c.Send(protocol.OutMessage, msg)
	}
}
