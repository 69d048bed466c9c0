package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/pkg/protocol"
)

func countEvent(t *testing.T, transport *mockTransport, event string) int {
	t.Helper()
	transport.mu.Lock()
	defer transport.mu.Unlock()
	n := 0
	for _, frame := range transport.frames {
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		if env.Event == event {
			n++
		}
	}
	return n
}

func TestDefaultCommandBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, transport := env.newClient(t, registeredUser(1, "alice"))
	room := env.manager.MainRoom()
	room.AttachConnection(conn)

	require.NoError(t, room.HandleLine(context.Background(), "hello everyone", conn))

	require.Len(t, env.store.saved, 1)
	assert.Equal(t, "hello everyone", env.store.saved[0].Content)
	assert.Equal(t, 1, countEvent(t, transport, protocol.OutMessage))
}

func TestJoinReplaysHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, _ := env.newClient(t, registeredUser(1, "alice"))
	room := env.manager.MainRoom()
	room.AttachConnection(alice)

	require.NoError(t, room.HandleLine(context.Background(), "first", alice))
	require.NoError(t, room.HandleLine(context.Background(), "second", alice))

	bob, transport := env.newClient(t, registeredUser(2, "bob"))
	room.AttachConnection(bob)

	assert.Equal(t, 2, countEvent(t, transport, protocol.OutMessage))
}
