package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageKind tells the two inbound frame flavours apart. Text frames carry
// JSON envelopes, binary frames carry raw payloads (audio-style traffic).
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageBinary
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, kind MessageKind, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan outFrame

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

type outFrame struct {
	kind MessageKind
	data []byte
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	// Balanced by Close, which runs exactly once whether or not the pumps
	// ever started.
	wg.Add(1)

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan outFrame, 256), // Buffered channel
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Debug("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		kind := MessageText
		if typ == websocket.MessageBinary {
			kind = MessageBinary
		}
		// Pass a connection-scoped context to the handler.
		c.onMessage(c.ctx, c.id, kind, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				// The send channel was closed, signal clean closure.
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			typ := websocket.MessageText
			if frame.kind == MessageBinary {
				typ = websocket.MessageBinary
			}
			if err := c.conn.Write(c.ctx, typ, frame.data); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "request cancelled")
			return
		}
	}
}

// Send queues a text frame for delivery. It never blocks on a dead peer.
func (c *Connection) Send(message []byte) {
	c.enqueue(outFrame{kind: MessageText, data: message})
}

// SendBinary queues a raw binary frame for delivery.
func (c *Connection) SendBinary(payload []byte) {
	c.enqueue(outFrame{kind: MessageBinary, data: payload})
}

func (c *Connection) enqueue(frame outFrame) {
	select {
	case c.send <- frame:
	case <-c.ctx.Done():
		c.logger.Debug("Attempted to send on a closed connection")
	default:
		// Slow consumer with a full buffer. Delivery is best-effort.
		c.logger.Warn("Send buffer full, dropping frame")
	}
}

// CloseStatus shuts the connection down with an application close code. The
// close handshake runs before the pumps are cancelled so the code reaches the
// peer; a force-terminate timer backstops peers that never acknowledge it.
func (c *Connection) CloseStatus(code int, reason string) {
	time.AfterFunc(3*time.Second, func() {
		c.conn.CloseNow()
	})
	c.shutdown(nil, func() {
		c.conn.Close(websocket.StatusCode(code), reason)
	})
}

// Close gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.shutdown(err, func() {
		c.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (c *Connection) shutdown(err error, closeSocket func()) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Debug("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		// The close frame must go out before the pumps are cancelled, or the
		// peer sees a bare EOF instead of the close code.
		closeSocket()
		c.cancel() // Signal goroutines to stop.
		close(c.send)
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
