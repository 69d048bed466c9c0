package core

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/logging"
)

type mockTransport struct {
	id uuid.UUID

	mu        sync.Mutex
	frames    [][]byte
	closeCode int
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

func (m *mockTransport) SendBinary(payload []byte) {}

func (m *mockTransport) CloseStatus(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCode = code
}

type memStore struct {
	mu    sync.Mutex
	saved []*chat.Message
	ops   map[int64]bool
}

func (s *memStore) SaveMessage(ctx context.Context, roomID int, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *memStore) RecentMessages(ctx context.Context, roomID int, limit int) ([]*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*chat.Message, len(s.saved))
	copy(out, s.saved)
	return out, nil
}

func (s *memStore) SetOP(userID int64, op bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ops == nil {
		s.ops = make(map[int64]bool)
	}
	s.ops[userID] = op
	return nil
}

type testEnv struct {
	registry *chat.Registry
	manager  *chat.Manager
	store    *memStore
}

func newTestEnv(t *testing.T, operators map[string]bool) *testEnv {
	t.Helper()
	store := &memStore{}
	registry := chat.NewRegistry(logging.Discard(), 0)
	plugins := chat.NewPluginSet()
	Register(plugins, store)
	var nextID int64
	manager := chat.NewManager(logging.Discard(), chat.ManagerOptions{
		Registry:       registry,
		Store:          store,
		Plugins:        plugins,
		DefaultPlugins: []string{"message", "room"},
		IsOP: func(identifier string) bool {
			return operators[identifier]
		},
		NextMessageID: func() int64 { nextID++; return nextID },
	})
	return &testEnv{registry: registry, manager: manager, store: store}
}

func (e *testEnv) newClient(t *testing.T, user *chat.User) (*chat.Connection, *mockTransport) {
	t.Helper()
	transport := newMockTransport()
	conn := chat.NewConnection(transport, logging.Discard())
	session, err := e.registry.NewSession(user)
	require.NoError(t, err)
	session.AttachConnection(conn)
	return conn, transport
}

func registeredUser(id int64, username string) *chat.User {
	return &chat.User{ID: id, Username: username, Right: chat.RightUser}
}
