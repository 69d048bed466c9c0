package chat

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPlugin records invocations and exposes one configurable rule.
type stubPlugin struct {
	name    string
	aliases []string
	rule    *Rule
	calls   []string
	runErr  error
}

func (p *stubPlugin) Name() string      { return p.name }
func (p *stubPlugin) Aliases() []string { return p.aliases }

func (p *stubPlugin) Rules() map[string]*Rule {
	rules := map[string]*Rule{p.name: p.rule}
	for _, alias := range p.aliases {
		rules[alias] = p.rule
	}
	return rules
}

func (p *stubPlugin) Run(ctx context.Context, alias, param string, c *Connection) error {
	p.calls = append(p.calls, alias+"|"+param)
	return p.runErr
}

func stubSet(plugins ...*stubPlugin) (*PluginSet, []string) {
	set := NewPluginSet()
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		p := p
		set.RegisterRoomPlugin(p.name, func(room *Room) Plugin { return p })
		names = append(names, p.name)
	}
	return set, names
}

func TestParseCommand(t *testing.T) {
	alias, param := ParseCommand("/poll should we?")
	assert.Equal(t, "poll", alias)
	assert.Equal(t, "should we?", param)

	alias, param = ParseCommand("hello world")
	assert.Equal(t, "message", alias)
	assert.Equal(t, "hello world", param)

	alias, param = ParseCommand("/flush")
	assert.Equal(t, "flush", alias)
	assert.Equal(t, "", param)
}

func TestDispatchUnknownCommand(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	conn, _ := env.newGuestClient(t, "*Mole#1")
	room := env.manager.MainRoom()
	room.AttachConnection(conn)

	err := room.HandleLine(context.Background(), "/nosuchcommand", conn)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDispatchResolvesAliases(t *testing.T) {
	plugin := &stubPlugin{
		name:    "echo",
		aliases: []string{"e"},
		rule:    &Rule{MinCount: 0, MaxCount: NoLimit, MinRight: RightGuest},
	}
	set, names := stubSet(plugin)
	env := newTestEnv(t, set, names, nil)
	conn, _ := env.newGuestClient(t, "*Mole#1")
	room := env.manager.MainRoom()
	room.AttachConnection(conn)

	require.NoError(t, room.HandleLine(context.Background(), "/e hi there", conn))
	require.NoError(t, room.HandleLine(context.Background(), "/echo again", conn))
	assert.Equal(t, []string{"e|hi there", "echo|again"}, plugin.calls)
}

func TestDispatchValidatesBeforeRun(t *testing.T) {
	plugin := &stubPlugin{
		name: "join",
		rule: &Rule{
			MinCount: 1,
			MaxCount: 1,
			MinRight: RightGuest,
			Params:   []Param{{Name: "room id", Pattern: regexp.MustCompile(`^[0-9]+$`)}},
		},
	}
	set, names := stubSet(plugin)
	env := newTestEnv(t, set, names, nil)
	conn, _ := env.newGuestClient(t, "*Mole#1")
	room := env.manager.MainRoom()
	room.AttachConnection(conn)

	err := room.HandleLine(context.Background(), "/join", conn)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = room.HandleLine(context.Background(), "/join abc", conn)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "room id")

	// validation failures never reach the handler
	assert.Empty(t, plugin.calls)

	require.NoError(t, room.HandleLine(context.Background(), "/join 42", conn))
	assert.Equal(t, []string{"join|42"}, plugin.calls)
}

func TestDispatchMinRight(t *testing.T) {
	plugin := &stubPlugin{
		name: "create",
		rule: &Rule{MinCount: 0, MaxCount: NoLimit, MinRight: RightUser},
	}
	set, names := stubSet(plugin)
	env := newTestEnv(t, set, names, map[string]bool{"boss": true})

	guest, _ := env.newGuestClient(t, "*Mole#1")
	room := env.manager.MainRoom()
	room.AttachConnection(guest)

	err := room.HandleLine(context.Background(), "/create", guest)
	require.Error(t, err)
	assert.Equal(t, KindPermission, KindOf(err))

	// configured operators bypass the right check even as guests
	op, _ := env.newGuestClient(t, "boss")
	room.AttachConnection(op)
	require.NoError(t, room.HandleLine(context.Background(), "/create", op))
}

func TestDispatchOPOnly(t *testing.T) {
	plugin := &stubPlugin{
		name: "flush",
		rule: &Rule{MinCount: 0, MaxCount: NoLimit, OPOnly: true},
	}
	set, names := stubSet(plugin)
	env := newTestEnv(t, set, names, nil)

	user, _ := env.newClient(t, registeredUser(1, "alice"))
	room := env.manager.MainRoom()
	room.AttachConnection(user)

	err := room.HandleLine(context.Background(), "/flush", user)
	require.Error(t, err)
	assert.Equal(t, KindPermission, KindOf(err))

	opUser := registeredUser(2, "bob")
	opUser.OP = true
	op, _ := env.newClient(t, opUser)
	room.AttachConnection(op)
	require.NoError(t, room.HandleLine(context.Background(), "/flush", op))
}

func TestRateLimiterCooldown(t *testing.T) {
	limiter := newRateLimiter()
	rule := &Rule{Cooldown: time.Second}
	start := time.Now()

	require.NoError(t, limiter.Check("poll", "alice", rule, start))

	err := limiter.Check("poll", "alice", rule, start.Add(200*time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, KindOf(err))

	// a rejected call does not extend the cooldown
	require.NoError(t, limiter.Check("poll", "alice", rule, start.Add(time.Second)))

	// other sessions are unaffected
	require.NoError(t, limiter.Check("poll", "bob", rule, start.Add(300*time.Millisecond)))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	limiter := newRateLimiter()
	rule := &Rule{MaxCallsPer10s: 3}
	start := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Check("m", "alice", rule, start.Add(time.Duration(i)*time.Second)))
	}
	err := limiter.Check("m", "alice", rule, start.Add(3*time.Second))
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, KindOf(err))

	// the first call ages out of the window at start+10s
	require.NoError(t, limiter.Check("m", "alice", rule, start.Add(10*time.Second+time.Millisecond)))
}
