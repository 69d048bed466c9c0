package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/chat"
)

func TestLastMemberCannotLeavePrivateRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, registeredUser(1, "alice"))

	room := env.manager.CreatePrivateRoom("secret", "alice")
	room.AttachConnection(conn)
	plugin, ok := room.GetPlugin("room")
	require.True(t, ok)
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomleave", "", conn)
	require.Error(t, err)
	assert.Equal(t, chat.KindState, chat.KindOf(err))
	assert.Equal(t, []string{"alice"}, room.Whitelist())
	assert.Same(t, room, conn.Room())
}

func TestLeavePrivateRoomMovesToMain(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, registeredUser(1, "alice"))

	room := env.manager.CreatePrivateRoom("secret", "alice")
	require.NoError(t, room.Allow("bob"))
	room.AttachConnection(conn)
	plugin, _ := room.GetPlugin("room")
	runner := plugin.(chat.Runner)

	require.NoError(t, runner.Run(context.Background(), "roomleave", "", conn))
	assert.Equal(t, []string{"bob"}, room.Whitelist())
	assert.Same(t, env.manager.MainRoom(), conn.Room())
}

func TestCannotLeavePublicRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, registeredUser(1, "alice"))

	main := env.manager.MainRoom()
	main.AttachConnection(conn)
	plugin, _ := main.GetPlugin("room")
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomleave", "", conn)
	require.Error(t, err)
	assert.Equal(t, chat.KindState, chat.KindOf(err))
}

func TestGuestCannotCreatePrivateRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, chat.NewGuestUser("*Mole#1"))

	main := env.manager.MainRoom()
	main.AttachConnection(conn)
	plugin, _ := main.GetPlugin("room")
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomprivate", "hideout", conn)
	require.Error(t, err)
	assert.Equal(t, chat.KindPermission, chat.KindOf(err))
}

func TestPrivateRoomCreatorIsWhitelisted(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, registeredUser(1, "alice"))

	main := env.manager.MainRoom()
	main.AttachConnection(conn)
	plugin, _ := main.GetPlugin("room")
	runner := plugin.(chat.Runner)

	require.NoError(t, runner.Run(context.Background(), "roomprivate", "hideout", conn))

	room := conn.Room()
	require.NotSame(t, main, room)
	assert.True(t, room.IsPrivate())
	assert.Equal(t, []string{"alice"}, room.Whitelist())
}

func TestJoinRejectsNonWhitelisted(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, _ := env.newClient(t, registeredUser(1, "alice"))
	bob, _ := env.newClient(t, registeredUser(2, "bob"))

	main := env.manager.MainRoom()
	main.AttachConnection(alice)
	main.AttachConnection(bob)

	secret := env.manager.CreatePrivateRoom("secret", "alice")
	plugin, _ := main.GetPlugin("room")
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomjoin", "1", bob)
	require.Error(t, err)
	assert.Equal(t, chat.KindPermission, chat.KindOf(err))
	assert.Same(t, main, bob.Room())

	require.NoError(t, runner.Run(context.Background(), "roomjoin", "1", alice))
	assert.Same(t, secret, alice.Room())
}

func TestDeletePopulatedPrivateRoomRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.newClient(t, registeredUser(1, "alice"))

	room := env.manager.CreatePrivateRoom("secret", "alice")
	require.NoError(t, room.Allow("bob"))
	room.AttachConnection(conn)
	plugin, _ := room.GetPlugin("room")
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomdelete", "", conn)
	require.Error(t, err)
	assert.Equal(t, chat.KindState, chat.KindOf(err))
	_, found := env.manager.FindRoom(room.ID())
	assert.True(t, found)
}

func TestRoomPluginToggleTrimsParam(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"boss": true})
	room := env.manager.MainRoom()
	conn, _ := env.newClient(t, registeredUser(1, "boss"))
	room.AttachConnection(conn)

	plugin, ok := room.GetPlugin("room")
	require.True(t, ok)
	runner := plugin.(chat.Runner)

	require.NoError(t, runner.Run(context.Background(), "roomplugin", "-message", conn))
	assert.NotContains(t, room.EnabledPlugins(), "message")

	// command params arrive with surrounding whitespace intact
	require.NoError(t, runner.Run(context.Background(), "roomplugin", " +message", conn))
	assert.Contains(t, room.EnabledPlugins(), "message")
}

func TestRoomPluginRejectsBareName(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"boss": true})
	room := env.manager.MainRoom()
	conn, _ := env.newClient(t, registeredUser(1, "boss"))
	room.AttachConnection(conn)

	plugin, ok := room.GetPlugin("room")
	require.True(t, ok)
	runner := plugin.(chat.Runner)

	err := runner.Run(context.Background(), "roomplugin", "message", conn)
	require.Error(t, err)
	assert.Equal(t, chat.KindValidation, chat.KindOf(err))
}
