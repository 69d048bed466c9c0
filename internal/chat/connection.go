package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/pkg/protocol"
)

// Transport is the socket-level contract a chat connection drives. The real
// implementation lives in pkg/transport; tests substitute an in-memory fake.
type Transport interface {
	ID() uuid.UUID
	Send(frame []byte)
	SendBinary(payload []byte)
	CloseStatus(code int, reason string)
}

// BinaryHandler receives raw binary payloads surfaced by a connection.
type BinaryHandler func(c *Connection, payload []byte)

// Connection is one live endpoint for a single client tab. It always belongs
// to exactly one session and to at most one room.
type Connection struct {
	id        uuid.UUID
	transport Transport
	logger    *slog.Logger

	mu       sync.RWMutex
	session  *Session
	room     *Room
	lastPong time.Time

	onBinary BinaryHandler
}

func NewConnection(transport Transport, logger *slog.Logger) *Connection {
	id := transport.ID()
	return &Connection{
		id:        id,
		transport: transport,
		logger:    logger.With(slog.String("connID", id.String())),
		lastPong:  time.Now(),
	}
}

func (c *Connection) ID() uuid.UUID { return c.id }

// Session returns the owning session. Never nil once the connection has been
// attached, which happens before any traffic is dispatched.
func (c *Connection) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Connection) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Room returns the connection's current room, or nil.
func (c *Connection) Room() *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// setRoom updates the room reference and notifies the client. A nil room
// pushes a null id, which clients render as "no room".
func (c *Connection) setRoom(room *Room) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	if room != nil {
		c.Send(protocol.OutJoinRoom, room.ID())
	} else {
		c.Send(protocol.OutJoinRoom, nil)
	}
}

// clearRoom drops the room reference if it still points at expect. Unlike
// setRoom it stays silent: the client learns about its next room from the
// attach that follows, or from the socket closing.
func (c *Connection) clearRoom(expect *Room) {
	c.mu.Lock()
	if c.room == expect {
		c.room = nil
	}
	c.mu.Unlock()
}

// Send encodes and transmits one envelope. Delivery is best-effort: encoding
// failures are logged and dropped, they never propagate to the caller.
func (c *Connection) Send(event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		c.logger.Error("Failed to encode outbound envelope", slog.String("event", event), slog.Any("error", err))
		return
	}
	c.transport.Send(frame)
}

// SendBinary transmits a raw binary frame.
func (c *Connection) SendBinary(payload []byte) {
	c.transport.SendBinary(payload)
}

// SendError reports a failure to this connection only.
func (c *Connection) SendError(err error) {
	c.Send(protocol.OutError, err.Error())
}

// SendInfo pushes an informational notice to this connection only.
func (c *Connection) SendInfo(message string) {
	c.Send(protocol.OutInfo, message)
}

// Kick closes the connection with the administrative close code.
func (c *Connection) Kick(reason string) {
	c.transport.CloseStatus(protocol.CloseKicked, reason)
}

// Close starts the default shutdown.
func (c *Connection) Close(reason string) {
	c.transport.CloseStatus(protocol.CloseDefault, reason)
}

// SetBinaryHandler installs the sink for inbound binary payloads.
func (c *Connection) SetBinaryHandler(h BinaryHandler) {
	c.mu.Lock()
	c.onBinary = h
	c.mu.Unlock()
}

// HandleBinary surfaces one raw binary payload.
func (c *Connection) HandleBinary(payload []byte) {
	c.mu.RLock()
	h := c.onBinary
	c.mu.RUnlock()
	if h != nil {
		h(c, payload)
	}
}

// HandlePong records peer liveness.
func (c *Connection) HandlePong() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

// HandlePing answers a client-initiated heartbeat.
func (c *Connection) HandlePing() {
	c.Send(protocol.OutPong, nil)
}

// LastPong returns the time the peer last proved liveness.
func (c *Connection) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// RunHeartbeat pings the peer at a fixed interval and closes the connection
// with the ping-timeout code once the missed-ping budget is exhausted. Blocks
// until ctx is cancelled, so callers run it in its own goroutine.
func (c *Connection) RunHeartbeat(ctx context.Context, interval time.Duration, maxMissed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			missed := int(time.Since(c.LastPong())/interval) - 1
			if missed > maxMissed {
				c.logger.Info("Ping timeout, closing connection", slog.Int("missed", missed))
				c.transport.CloseStatus(protocol.ClosePingTimeout, "ping timeout")
				return
			}
			c.Send(protocol.OutPing, nil)
		}
	}
}
