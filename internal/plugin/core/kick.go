package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleychat/parley/internal/chat"
)

// KickPlugin forcefully disconnects a session. Kicked clients see the
// administrative close code, so they know not to auto-reconnect.
type KickPlugin struct {
	manager *chat.Manager
}

func NewKickPlugin(manager *chat.Manager) chat.Plugin {
	return &KickPlugin{manager: manager}
}

func (p *KickPlugin) Name() string      { return "kick" }
func (p *KickPlugin) Aliases() []string { return nil }

func (p *KickPlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"kick": {
			MinCount: 1,
			MaxCount: chat.NoLimit,
			Params:   []chat.Param{{Name: "identifier", Pattern: identifierPattern}},
			OPOnly:   true,
		},
	}
}

func (p *KickPlugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	target, reason, _ := strings.Cut(param, " ")
	identifier := chat.IdentifierFor(strings.TrimSpace(target))
	session, ok := p.manager.Registry().Find(identifier)
	if !ok {
		return chat.NotFoundf("no session for %q", identifier)
	}
	if p.manager.IsOP(session) {
		return chat.Permissionf("operators cannot be kicked")
	}
	if reason == "" {
		reason = "kicked"
	}
	for _, conn := range session.Connections() {
		conn.Kick(reason)
	}
	c.SendInfo(fmt.Sprintf("%s has been kicked", identifier))
	return nil
}
