package core

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/protocol"
)

var (
	connectedListModePattern = regexp.MustCompile(`^(show-all|hide-details-by-right)$`)
	connectedListArgPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// SessionInfo is one entry of the connected-list payload. The identifier is
// carried verbatim in both the full and the redacted variants.
type SessionInfo struct {
	Identifier      string             `json:"identifier"`
	User            chat.SanitizedUser `json:"user"`
	ConnectionCount int                `json:"connectionCount"`
	RoomID          *int               `json:"roomId"`
}

// ConnectedListPlugin is a global plugin keeping every client's session
// directory current. It refreshes on auth/join/leave and on a slow tick.
type ConnectedListPlugin struct {
	manager *chat.Manager

	mu       sync.Mutex
	mode     string
	argument int

	stop chan struct{}
	once sync.Once
}

func NewConnectedListPlugin(manager *chat.Manager) chat.Plugin {
	p := &ConnectedListPlugin{
		manager: manager,
		mode:    "show-all",
		stop:    make(chan struct{}),
	}
	go p.runTicks()
	return p
}

func (p *ConnectedListPlugin) Name() string      { return "connectedlist" }
func (p *ConnectedListPlugin) Aliases() []string { return nil }

func (p *ConnectedListPlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"connectedlist": {
			MinCount: 2,
			MaxCount: 2,
			Params: []chat.Param{
				{Name: "mode", Pattern: connectedListModePattern},
				{Name: "argument", Pattern: connectedListArgPattern},
			},
			OPOnly: true,
		},
	}
}

func (p *ConnectedListPlugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	fields := strings.Fields(param)
	argument, err := strconv.Atoi(fields[1])
	if err != nil {
		return chat.Validationf("invalid value for parameter %q", "argument")
	}
	p.mu.Lock()
	p.mode = fields[0]
	p.argument = argument
	p.mu.Unlock()

	p.Sync()
	return nil
}

func (p *ConnectedListPlugin) OnConnectionAuthenticated(c *chat.Connection) { p.Sync() }
func (p *ConnectedListPlugin) OnConnectionJoinedRoom(c *chat.Connection)    { p.Sync() }
func (p *ConnectedListPlugin) OnConnectionLeftRoom(c *chat.Connection)      { p.Sync() }

func (p *ConnectedListPlugin) Close() {
	p.once.Do(func() { close(p.stop) })
}

func (p *ConnectedListPlugin) runTicks() {
	ticker := time.NewTicker(6 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.Sync()
		}
	}
}

// Sync pushes the directory to every connection, choosing the full or the
// redacted variant per viewer right.
func (p *ConnectedListPlugin) Sync() {
	sessions := p.manager.Registry().All()

	real := buildSessionInfos(sessions)
	redacted := RedactSessionInfos(real)

	p.mu.Lock()
	mode := p.mode
	argument := p.argument
	p.mu.Unlock()

	for _, session := range sessions {
		for _, c := range session.Connections() {
			if mode == "hide-details-by-right" && session.User().Right < argument {
				c.Send(protocol.OutConnectedList, redacted)
			} else {
				c.Send(protocol.OutConnectedList, real)
			}
		}
	}
}

func buildSessionInfos(sessions []*chat.Session) []SessionInfo {
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{
			Identifier:      s.Identifier(),
			User:            s.User().Sanitized(),
			ConnectionCount: s.ConnectionCount(),
		}
		for _, c := range s.Connections() {
			if room := c.Room(); room != nil {
				id := room.ID()
				info.RoomID = &id
				break
			}
		}
		out = append(out, info)
	}
	// Active sessions first, then by right, then by name.
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].ConnectionCount == 0) != (out[j].ConnectionCount == 0) {
			return out[i].ConnectionCount > 0
		}
		if out[i].User.Right != out[j].User.Right {
			return out[i].User.Right > out[j].User.Right
		}
		return out[i].User.Username < out[j].User.Username
	})
	return out
}

// RedactSessionInfos strips privilege details for low-right viewers without
// touching identifiers. It always works on copies.
func RedactSessionInfos(infos []SessionInfo) []SessionInfo {
	out := make([]SessionInfo, len(infos))
	copy(out, infos)
	for i := range out {
		out[i].User.Right = chat.RightGuest
		out[i].User.OP = false
	}
	return out
}
