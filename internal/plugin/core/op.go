package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/protocol"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,16}$`)

// OPStore persists operator grants across restarts.
type OPStore interface {
	SetOP(userID int64, op bool) error
}

// OpPlugin grants and revokes operator rights at runtime.
type OpPlugin struct {
	manager *chat.Manager
	store   OPStore
}

func NewOpPlugin(manager *chat.Manager, store OPStore) chat.Plugin {
	return &OpPlugin{manager: manager, store: store}
}

func (p *OpPlugin) Name() string      { return "op" }
func (p *OpPlugin) Aliases() []string { return []string{"deop"} }

func (p *OpPlugin) Rules() map[string]*chat.Rule {
	rule := &chat.Rule{
		MinCount: 1,
		MaxCount: 1,
		Params:   []chat.Param{{Name: "username", Pattern: usernamePattern}},
		OPOnly:   true,
	}
	return map[string]*chat.Rule{"op": rule, "deop": rule}
}

func (p *OpPlugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	identifier := chat.IdentifierFor(strings.TrimSpace(param))
	session, ok := p.manager.Registry().Find(identifier)
	if !ok {
		return chat.NotFoundf("no session for %q", identifier)
	}
	user := session.User()
	if user.Right < chat.RightUser {
		return chat.Statef("guests cannot be granted operator rights")
	}

	op := alias == "op"
	// Other goroutines read the session's user concurrently, so swap in a
	// copy through the session lock instead of mutating the shared struct.
	updated := *user
	updated.OP = op
	session.SetUser(&updated)
	if p.store != nil {
		if err := p.store.SetOP(updated.ID, op); err != nil {
			return chat.Statef("operator grant could not be stored")
		}
	}
	session.Send(protocol.OutSetOP, op)
	c.SendInfo(fmt.Sprintf("%s operator rights: %v", identifier, op))
	return nil
}
