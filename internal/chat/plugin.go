package chat

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Plugin is the minimal contract every extension provides. Capabilities on
// top of it are optional interfaces; the dispatcher probes for them with type
// assertions instead of calling no-op defaults.
type Plugin interface {
	Name() string
	Aliases() []string
	Rules() map[string]*Rule
}

// Runner handles command invocations. A plugin that declares aliases without
// implementing Runner can never be invoked.
type Runner interface {
	Run(ctx context.Context, alias, param string, c *Connection) error
}

// JoinHook observes connections entering a room.
type JoinHook interface {
	OnConnectionJoinedRoom(c *Connection)
}

// LeaveHook observes connections leaving a room.
type LeaveHook interface {
	OnConnectionLeftRoom(c *Connection)
}

// AuthHook observes a connection's session becoming authenticated.
type AuthHook interface {
	OnConnectionAuthenticated(c *Connection)
}

// MessageHook may rewrite or reject an incoming command line before parsing.
type MessageHook interface {
	OnNewMessage(line string, c *Connection) (string, error)
}

// Closer releases plugin resources (tickers, pending votes) when the plugin
// is disabled or its room is deleted.
type Closer interface {
	Close()
}

// NoLimit marks an unbounded argument count.
const NoLimit = -1

// Param is one positional parameter declaration.
type Param struct {
	Name    string
	Pattern *regexp.Regexp
}

// Rule is the immutable validation contract for one command alias. It is
// consulted in full before Run executes; any violation short-circuits with no
// observable side effect.
type Rule struct {
	MinCount int
	MaxCount int // NoLimit for unbounded
	Params   []Param

	MinRight int
	OPOnly   bool

	// Cooldown rejects a second call by the same session within the window.
	Cooldown time.Duration
	// MaxCallsPer10s caps invocations inside a 10-second sliding window.
	// 0 disables the cap.
	MaxCallsPer10s int
}

// Validate checks the tokenized argument list against this rule. Each
// command owns its own tokenization downstream; validation always splits on
// whitespace, mirroring how rules declare positional patterns.
func (r *Rule) Validate(param string) error {
	tokens := strings.Fields(param)
	if len(tokens) < r.MinCount {
		return Validationf("expected at least %d argument(s), got %d", r.MinCount, len(tokens))
	}
	if r.MaxCount != NoLimit && len(tokens) > r.MaxCount {
		return Validationf("expected at most %d argument(s), got %d", r.MaxCount, len(tokens))
	}
	for i, p := range r.Params {
		if i >= len(tokens) {
			break
		}
		if p.Pattern != nil && !p.Pattern.MatchString(tokens[i]) {
			return Validationf("invalid value for parameter %q", p.Name)
		}
	}
	return nil
}

// RoomPluginFactory builds a room-scoped plugin instance.
type RoomPluginFactory func(room *Room) Plugin

// GlobalPluginFactory builds a plugin shared across the whole process.
type GlobalPluginFactory func(m *Manager) Plugin

// PluginSet is the catalogue of available plugin constructors. It is owned by
// the server and handed to the room manager; registration happens once during
// boot wiring.
type PluginSet struct {
	room   map[string]RoomPluginFactory
	global map[string]GlobalPluginFactory
}

func NewPluginSet() *PluginSet {
	return &PluginSet{
		room:   make(map[string]RoomPluginFactory),
		global: make(map[string]GlobalPluginFactory),
	}
}

func (ps *PluginSet) RegisterRoomPlugin(name string, factory RoomPluginFactory) {
	if _, exists := ps.room[name]; exists {
		panic(fmt.Sprintf("room plugin already registered: %s", name))
	}
	ps.room[name] = factory
}

func (ps *PluginSet) RegisterGlobalPlugin(name string, factory GlobalPluginFactory) {
	if _, exists := ps.global[name]; exists {
		panic(fmt.Sprintf("global plugin already registered: %s", name))
	}
	ps.global[name] = factory
}

// HasRoomPlugin reports whether a room-scoped plugin is available under name.
func (ps *PluginSet) HasRoomPlugin(name string) bool {
	_, ok := ps.room[name]
	return ok
}

func (ps *PluginSet) buildRoom(name string, room *Room) (Plugin, bool) {
	factory, ok := ps.room[name]
	if !ok {
		return nil, false
	}
	return factory(room), true
}

func (ps *PluginSet) buildGlobals(m *Manager) []Plugin {
	out := make([]Plugin, 0, len(ps.global))
	for _, name := range sortedKeys(ps.global) {
		out = append(out, ps.global[name](m))
	}
	return out
}

// Deterministic instantiation order keeps hook ordering stable.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
