package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/pkg/logging"
	"github.com/parleychat/parley/pkg/protocol"
)

type mockTransport struct {
	id uuid.UUID

	mu          sync.Mutex
	frames      [][]byte
	binary      [][]byte
	closeCode   int
	closeReason string
}

func newMockTransport() *mockTransport {
	return &mockTransport{id: uuid.New()}
}

func (m *mockTransport) ID() uuid.UUID { return m.id }

func (m *mockTransport) Send(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

func (m *mockTransport) SendBinary(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = append(m.binary, payload)
}

func (m *mockTransport) CloseStatus(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCode = code
	m.closeReason = reason
}

// events decodes every sent frame into its event name, in send order.
func (m *mockTransport) events(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for _, frame := range m.frames {
		envelope, err := protocol.Decode(frame)
		require.NoError(t, err)
		out = append(out, envelope.Event)
	}
	return out
}

// lastPayload returns the data of the most recent frame carrying the event,
// or nil when none was sent.
func (m *mockTransport) lastPayload(t *testing.T, event string) json.RawMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.frames) - 1; i >= 0; i-- {
		envelope, err := protocol.Decode(m.frames[i])
		require.NoError(t, err)
		if envelope.Event == event {
			return envelope.Data
		}
	}
	return nil
}

type memStore struct {
	mu    sync.Mutex
	saved []*Message
}

func (s *memStore) SaveMessage(ctx context.Context, roomID int, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

type testEnv struct {
	registry *Registry
	manager  *Manager
	store    *memStore
}

func newTestEnv(t *testing.T, plugins *PluginSet, defaults []string, operators map[string]bool) *testEnv {
	t.Helper()
	logger := logging.Discard()
	if plugins == nil {
		plugins = NewPluginSet()
	}
	store := &memStore{}
	registry := NewRegistry(logger, 0)
	var nextID int64
	manager := NewManager(logger, ManagerOptions{
		Registry:       registry,
		Store:          store,
		Plugins:        plugins,
		DefaultPlugins: defaults,
		IsOP: func(identifier string) bool {
			return operators[identifier]
		},
		NextMessageID: func() int64 { nextID++; return nextID },
	})
	return &testEnv{registry: registry, manager: manager, store: store}
}

// newClient builds a connection attached to a fresh session for the user.
func (e *testEnv) newClient(t *testing.T, user *User) (*Connection, *mockTransport) {
	t.Helper()
	transport := newMockTransport()
	conn := NewConnection(transport, logging.Discard())
	session, err := e.registry.NewSession(user)
	require.NoError(t, err)
	session.AttachConnection(conn)
	return conn, transport
}

func (e *testEnv) newGuestClient(t *testing.T, identifier string) (*Connection, *mockTransport) {
	t.Helper()
	return e.newClient(t, NewGuestUser(identifier))
}

func registeredUser(id int64, username string) *User {
	return &User{ID: id, Username: username, Right: RightUser}
}
