package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/parleychat/parley/internal/chat"
)

func TestOpGrantSwapsUserCopy(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"boss": true})
	room := env.manager.MainRoom()

	op, _ := env.newClient(t, registeredUser(1, "boss"))
	room.AttachConnection(op)

	original := registeredUser(2, "alice")
	target, transport := env.newClient(t, original)
	room.AttachConnection(target)

	require.NoError(t, room.HandleLine(context.Background(), "/op alice", op))

	session := target.Session()
	assert.True(t, session.User().OP)
	// The struct handed out before the grant is never written to; the grant
	// replaces the session's user wholesale.
	assert.NotSame(t, original, session.User())
	assert.False(t, original.OP)
	assert.True(t, env.store.ops[2])

	var notified bool
	transport.mu.Lock()
	for _, frame := range transport.frames {
		if gjson.GetBytes(frame, "event").String() == "set-op" && gjson.GetBytes(frame, "data").Bool() {
			notified = true
		}
	}
	transport.mu.Unlock()
	assert.True(t, notified)
}

func TestDeopRevokesRights(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"boss": true})
	room := env.manager.MainRoom()

	op, _ := env.newClient(t, registeredUser(1, "boss"))
	room.AttachConnection(op)

	granted := registeredUser(2, "alice")
	granted.OP = true
	target, _ := env.newClient(t, granted)
	room.AttachConnection(target)

	require.NoError(t, room.HandleLine(context.Background(), "/deop alice", op))

	assert.False(t, target.Session().User().OP)
	assert.False(t, env.store.ops[2])
}

func TestOpRefusesGuests(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"boss": true})
	room := env.manager.MainRoom()

	op, _ := env.newClient(t, registeredUser(1, "boss"))
	room.AttachConnection(op)
	guest, _ := env.newClient(t, chat.NewGuestUser("*Mole#1"))
	room.AttachConnection(guest)

	plugin := &OpPlugin{manager: env.manager, store: env.store}
	err := plugin.Run(context.Background(), "op", "*mole#1", op)
	require.Error(t, err)
	assert.Equal(t, chat.KindState, chat.KindOf(err))
	assert.False(t, guest.Session().User().OP)
}
