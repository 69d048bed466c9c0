package server

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

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

func (m *mockTransport) sentEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for _, frame := range m.frames {
		out = append(out, gjson.GetBytes(frame, "event").String())
	}
	return out
}

func TestMalformedFrameAnswersSenderOnly(t *testing.T) {
	app := &App{}
	transport := newMockTransport()
	conn := chat.NewConnection(transport, logging.Discard())

	app.handleTextFrame(context.Background(), conn, []byte("this is not json"))

	require.Equal(t, []string{"error"}, transport.sentEvents())
	assert.Zero(t, transport.closeCode)
}

func TestUnknownEventAnswersError(t *testing.T) {
	app := &App{}
	transport := newMockTransport()
	conn := chat.NewConnection(transport, logging.Discard())

	app.handleTextFrame(context.Background(), conn, []byte(`{"event":"made-up","data":null}`))

	require.Equal(t, []string{"error"}, transport.sentEvents())
	assert.Zero(t, transport.closeCode)
}

func TestMessageOutsideRoomAnswersError(t *testing.T) {
	app := &App{}
	transport := newMockTransport()
	conn := chat.NewConnection(transport, logging.Discard())

	app.handleTextFrame(context.Background(), conn, []byte(`{"event":"message","data":"hello"}`))

	require.Equal(t, []string{"error"}, transport.sentEvents())
	assert.Zero(t, transport.closeCode)
}
