package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parleychat/parley/pkg/protocol"
)

// CommandMarker prefixes explicit command invocations. Plain text is
// rewritten to the default message command.
const CommandMarker = "/"

// DefaultCommand is the implicit command for unmarked lines.
const DefaultCommand = "message"

// Room is a broadcast domain. It owns an ordered connection list, an ordered
// set of enabled plugins, and, for private rooms, an identity whitelist.
type Room struct {
	id      int
	manager *Manager
	logger  *slog.Logger
	limiter *rateLimiter

	mu          sync.RWMutex
	name        string
	isPrivate   bool
	whitelist   []string
	connections []*Connection
	plugins     []Plugin
	pluginNames []string
}

func newRoom(id int, name string, manager *Manager, logger *slog.Logger) *Room {
	return &Room{
		id:      id,
		name:    name,
		manager: manager,
		logger:  logger.With(slog.Int("roomID", id)),
		limiter: newRateLimiter(),
	}
}

func (r *Room) ID() int { return r.id }

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Room) SetName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

func (r *Room) IsPrivate() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isPrivate
}

// Whitelist returns a copy of the allowed identities.
func (r *Room) Whitelist() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.whitelist))
	copy(out, r.whitelist)
	return out
}

// IsAllowed reports whether the identity may enter this room.
func (r *Room) IsAllowed(identifier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isPrivate {
		return true
	}
	for _, allowed := range r.whitelist {
		if allowed == identifier {
			return true
		}
	}
	return false
}

// Allow adds an identity to the whitelist.
func (r *Room) Allow(identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isPrivate {
		return Statef("room %d is not private", r.id)
	}
	for _, existing := range r.whitelist {
		if existing == identifier {
			return Statef("%s is already allowed in this room", identifier)
		}
	}
	r.whitelist = append(r.whitelist, identifier)
	return nil
}

// Unallow removes an identity from the whitelist. The "last member cannot
// leave" invariant is enforced at the command layer, not here.
func (r *Room) Unallow(identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.whitelist {
		if existing == identifier {
			r.whitelist = append(r.whitelist[:i], r.whitelist[i+1:]...)
			return nil
		}
	}
	return NotFoundf("%s is not allowed in this room", identifier)
}

// AttachConnection moves c into this room, detaching it from its previous
// room first, and fires the join hooks on every enabled plugin.
func (r *Room) AttachConnection(c *Connection) {
	if prev := c.Room(); prev == r {
		return
	} else if prev != nil {
		prev.DetachConnection(c)
	}

	r.mu.Lock()
	r.connections = append(r.connections, c)
	r.mu.Unlock()

	c.setRoom(r)
	r.eachPlugin(func(p Plugin) {
		if hook, ok := p.(JoinHook); ok {
			hook.OnConnectionJoinedRoom(c)
		}
	})
}

// DetachConnection removes c from the room and fires the leave hooks.
func (r *Room) DetachConnection(c *Connection) {
	r.mu.Lock()
	found := false
	for i, existing := range r.connections {
		if existing == c {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return
	}

	c.clearRoom(r)
	r.eachPlugin(func(p Plugin) {
		if hook, ok := p.(LeaveHook); ok {
			hook.OnConnectionLeftRoom(c)
		}
	})
}

// Connections returns a membership snapshot in attach order.
func (r *Room) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// ContainsIdentifier reports whether any member connection belongs to the
// given session identity.
func (r *Room) ContainsIdentifier(identifier string) bool {
	for _, c := range r.Connections() {
		if s := c.Session(); s != nil && s.Identifier() == identifier {
			return true
		}
	}
	return false
}

// Send broadcasts one envelope to the membership snapshot taken at call
// time. Connections joining mid-broadcast are not included; leavers may
// still receive a best-effort frame.
func (r *Room) Send(event string, payload any) {
	for _, c := range r.Connections() {
		c.Send(event, payload)
	}
}

// SendMessage validates, persists, and broadcasts one message to every
// member connection in membership order.
func (r *Room) SendMessage(ctx context.Context, content string, author *User, meta map[string]any) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, Validationf("messages cannot be empty")
	}
	msg := &Message{
		ID:        r.manager.nextMessageID(),
		Content:   content,
		Author:    author.Sanitized(),
		Meta:      meta,
		CreatedAt: time.Now(),
	}
	if err := r.manager.store.SaveMessage(ctx, r.id, msg); err != nil {
		return nil, Statef("message could not be stored")
	}
	// Persistence suspended us. The room may have lost every member in the
	// meantime; the snapshot below simply comes out empty then.
	r.Send(protocol.OutMessage, msg)
	return msg, nil
}

// BroadcastBinary fans a raw payload out to every member except the origin.
func (r *Room) BroadcastBinary(from *Connection, payload []byte) {
	for _, c := range r.Connections() {
		if c == from {
			continue
		}
		c.SendBinary(payload)
	}
}

// EnabledPlugins returns the ordered names of this room's plugin set.
func (r *Room) EnabledPlugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.pluginNames))
	copy(out, r.pluginNames)
	return out
}

// EnablePlugin instantiates and appends a plugin by catalogue name.
func (r *Room) EnablePlugin(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pluginNames {
		if existing == name {
			return Statef("plugin %q is already enabled", name)
		}
	}
	instance, ok := r.manager.plugins.buildRoom(name, r)
	if !ok {
		return NotFoundf("plugin %q does not exist", name)
	}
	r.plugins = append(r.plugins, instance)
	r.pluginNames = append(r.pluginNames, name)
	return nil
}

// DisablePlugin removes a plugin from this room.
func (r *Room) DisablePlugin(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.pluginNames {
		if existing == name {
			instance := r.plugins[i]
			r.pluginNames = append(r.pluginNames[:i], r.pluginNames[i+1:]...)
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			if closer, ok := instance.(Closer); ok {
				closer.Close()
			}
			return nil
		}
	}
	return NotFoundf("plugin %q is not enabled in this room", name)
}

// GetPlugin returns an enabled plugin instance by name.
func (r *Room) GetPlugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, existing := range r.pluginNames {
		if existing == name {
			return r.plugins[i], true
		}
	}
	return nil, false
}

// Manager returns the owning room manager.
func (r *Room) Manager() *Manager { return r.manager }

// closePlugins releases every room-scoped plugin. Called on room deletion.
func (r *Room) closePlugins() {
	r.mu.Lock()
	snapshot := r.plugins
	r.plugins = nil
	r.pluginNames = nil
	r.mu.Unlock()
	for _, p := range snapshot {
		if closer, ok := p.(Closer); ok {
			closer.Close()
		}
	}
}

// eachPlugin invokes fn for the room's plugins followed by the globals. A
// panicking plugin is isolated so the rest still observe the event.
func (r *Room) eachPlugin(fn func(p Plugin)) {
	r.mu.RLock()
	snapshot := make([]Plugin, len(r.plugins))
	copy(snapshot, r.plugins)
	r.mu.RUnlock()
	snapshot = append(snapshot, r.manager.GlobalPlugins()...)

	for _, p := range snapshot {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("Plugin hook panicked",
						slog.String("plugin", p.Name()),
						slog.Any("panic", rec))
				}
			}()
			fn(p)
		}()
	}
}

// ExecuteConnectionAuthenticated fires the auth hooks for c.
func (r *Room) ExecuteConnectionAuthenticated(c *Connection) {
	r.eachPlugin(func(p Plugin) {
		if hook, ok := p.(AuthHook); ok {
			hook.OnConnectionAuthenticated(c)
		}
	})
}
