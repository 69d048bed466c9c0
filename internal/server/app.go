package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/plugin/core"
	"github.com/parleychat/parley/internal/plugin/media"
	"github.com/parleychat/parley/internal/plugin/poll"
	"github.com/parleychat/parley/internal/storage"
	"github.com/parleychat/parley/pkg/config"
	"github.com/parleychat/parley/pkg/transport"
)

const (
	// persistInterval bounds how much counter state a crash can lose.
	persistInterval = 5 * time.Second
	// sessionGrace keeps an empty session alive so a reconnecting client
	// gets its identity back instead of a fresh guest.
	sessionGrace = 30 * time.Second
)

// App owns the full service: storage, the session registry, the room
// manager, and the HTTP server the websocket endpoint hangs off of.
type App struct {
	logger   *slog.Logger
	config   *config.Config
	db       *storage.DB
	boot     *storage.BootState
	tokens   *TokenIssuer
	registry *chat.Registry
	manager  *chat.Manager
	wg       sync.WaitGroup
	http     *http.Server

	ctx context.Context

	mu    sync.Mutex
	conns map[uuid.UUID]*liveConnection
}

// liveConnection pairs a protocol connection with the cancel func that
// stops its heartbeat loop.
type liveConnection struct {
	conn   *chat.Connection
	cancel context.CancelFunc
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, resolver media.Resolver) (*App, error) {
	db, err := storage.Open(logger, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	boot := storage.LoadBootState(logger, cfg.Storage.StatePath)

	plugins := chat.NewPluginSet()
	core.Register(plugins, db)
	media.Register(plugins, resolver)
	poll.Register(plugins)

	registry := chat.NewRegistry(logger, cfg.Chat.MaxConnectionsPerSession)
	manager := chat.NewManager(logger, chat.ManagerOptions{
		Registry:       registry,
		Store:          db,
		Plugins:        plugins,
		DefaultPlugins: cfg.Chat.EnabledPlugins,
		IsOP:           cfg.Chat.IsOP,
		NextMessageID:  boot.NextMessageID,
	})

	app := &App{
		logger:   logger,
		config:   cfg,
		db:       db,
		boot:     boot,
		tokens:   NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenValidity),
		registry: registry,
		manager:  manager,
		ctx:      rootCtx,
		conns:    make(map[uuid.UUID]*liveConnection),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", app.upgradeHandler)
	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app, nil
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	go a.housekeeping()

	<-a.ctx.Done()
	return a.Shutdown()
}

// housekeeping persists the id counters and evicts sessions whose grace
// period has expired.
func (a *App) housekeeping() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.boot.Save(); err != nil {
				a.logger.Error("Failed to persist boot state", slog.Any("error", err))
			}
			a.registry.Sweep(sessionGrace)
		}
	}
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	tConn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{ReadTimeout: a.config.Transport.ReadTimeout},
		nil,
		nil,
		a.logger,
	)
	conn := chat.NewConnection(tConn, a.logger)
	conn.SetBinaryHandler(func(c *chat.Connection, payload []byte) {
		if room := c.Room(); room != nil {
			room.BroadcastBinary(c, payload)
		}
	})

	session, err := a.newGuestSession()
	if err != nil {
		a.logger.Error("Failed to create guest session", slog.Any("error", err))
		tConn.Close(err)
		return
	}
	session.AttachConnection(conn)

	hbCtx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	a.conns[tConn.ID()] = &liveConnection{conn: conn, cancel: cancel}
	a.mu.Unlock()
	go conn.RunHeartbeat(hbCtx, a.config.Transport.PingInterval, a.config.Transport.MaxMissedPings)

	tConn.SetOnMessageHandler(a.handleFrame)
	tConn.SetOnCloseHandler(a.handleClose)

	a.manager.MainRoom().AttachConnection(conn)
	a.manager.SendRoomList(session)

	tConn.Run()
	<-tConn.Done()
}

// newGuestSession mints a throwaway identity like "*Mole#123". Guest
// identifiers carry a leading marker no registered username can start
// with, so the two namespaces never collide.
func (a *App) newGuestSession() (*chat.Session, error) {
	names := a.config.Chat.GuestNames
	for attempt := 0; attempt < 16; attempt++ {
		name := names[rand.Intn(len(names))]
		identifier := fmt.Sprintf("*%s#%d", name, a.boot.NextGuestID())
		session, err := a.registry.NewSession(chat.NewGuestUser(identifier))
		if err == nil {
			return session, nil
		}
	}
	return nil, chat.Statef("could not allocate a guest identity")
}

func (a *App) handleClose(connID uuid.UUID, err error) {
	a.mu.Lock()
	live, ok := a.conns[connID]
	delete(a.conns, connID)
	a.mu.Unlock()
	if !ok {
		return
	}
	live.cancel()
	if room := live.conn.Room(); room != nil {
		room.DetachConnection(live.conn)
	}
	if session := live.conn.Session(); session != nil {
		session.DetachConnection(live.conn)
	}
}

func (a *App) lookupConnection(connID uuid.UUID) (*chat.Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	live, ok := a.conns[connID]
	if !ok {
		return nil, false
	}
	return live.conn, true
}

func (a *App) handleFrame(ctx context.Context, connID uuid.UUID, kind transport.MessageKind, msg []byte) {
	conn, ok := a.lookupConnection(connID)
	if !ok {
		return
	}
	if kind == transport.MessageBinary {
		conn.HandleBinary(msg)
		return
	}
	a.handleTextFrame(ctx, conn, msg)
}

// Shutdown drains the HTTP server, closes every live connection, and
// persists counters before releasing storage.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	a.logger.Info("Closing all active connections...")
	for _, session := range a.registry.All() {
		for _, conn := range session.Connections() {
			conn.Close("graceful shutdown")
		}
	}
	a.wg.Wait()

	if err := a.boot.Save(); err != nil {
		a.logger.Error("Failed to persist boot state", slog.Any("error", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
