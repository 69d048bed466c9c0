package chat

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Session is a user identity. It aggregates every live connection opened
// under that identity, so several tabs act as one user. A session with zero
// connections stays registered until the registry sweeps it, which lets a
// reconnect resume where it left off.
type Session struct {
	registry *Registry

	mu          sync.RWMutex
	identifier  string
	user        *User
	connections []*Connection
	attachedAt  map[*Connection]time.Time
	lastDetach  time.Time
}

// Identifier returns the registry key for this session.
func (s *Session) Identifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier
}

// User returns the represented profile.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser replaces the represented identity in place. Every attached
// connection observes the new profile immediately; the registry key follows
// the new identity.
func (s *Session) SetUser(user *User) {
	s.mu.Lock()
	oldIdentifier := s.identifier
	s.user = user
	s.identifier = IdentifierFor(user.Username)
	newIdentifier := s.identifier
	s.mu.Unlock()

	if oldIdentifier != newIdentifier {
		s.registry.rekey(s, oldIdentifier, newIdentifier)
	}
}

// AttachConnection adds c to this session, detaching it from any previous
// session first. If the per-session connection limit is exceeded, the oldest
// attachment is cycled out.
func (s *Session) AttachConnection(c *Connection) {
	if prev := c.Session(); prev != nil && prev != s {
		prev.DetachConnection(c)
	}

	s.mu.Lock()
	s.connections = append(s.connections, c)
	s.attachedAt[c] = time.Now()
	var cycled *Connection
	if max := s.registry.maxPerSession; max > 0 && len(s.connections) > max {
		cycled = s.oldestLocked()
	}
	s.mu.Unlock()

	c.setSession(s)

	if cycled != nil && cycled != c {
		s.registry.logger.Info("Cycling connection: closing oldest",
			slog.String("identifier", s.Identifier()),
			slog.String("connID", cycled.ID().String()))
		cycled.Close("connection cycled by new connection")
		// the transport close handler detaches again eventually; doing it
		// here keeps the count accurate in the meantime
		s.DetachConnection(cycled)
	}
}

// DetachConnection removes c. An emptied session is not destroyed here:
// reconnection within the sweep grace period must be able to resume it.
func (s *Session) DetachConnection(c *Connection) {
	s.mu.Lock()
	for i, existing := range s.connections {
		if existing == c {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}
	delete(s.attachedAt, c)
	if len(s.connections) == 0 {
		s.lastDetach = time.Now()
	}
	s.mu.Unlock()
}

// Connections returns a snapshot of the attached connections in attach order.
func (s *Session) Connections() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, len(s.connections))
	copy(out, s.connections)
	return out
}

// ConnectionCount reports how many connections are currently attached.
func (s *Session) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Send fans an envelope out to every attached connection.
func (s *Session) Send(event string, payload any) {
	for _, c := range s.Connections() {
		c.Send(event, payload)
	}
}

func (s *Session) oldestLocked() *Connection {
	var oldest *Connection
	var oldestTime time.Time
	for _, c := range s.connections {
		at := s.attachedAt[c]
		if oldest == nil || at.Before(oldestTime) {
			oldest = c
			oldestTime = at
		}
	}
	return oldest
}

// IdentifierFor normalizes a username into a session identifier.
func IdentifierFor(username string) string {
	return strings.ToLower(username)
}

// Registry owns every live session, keyed by identifier. It is created at
// server start and torn down with it; nothing in the package reaches for a
// process-wide singleton.
type Registry struct {
	logger        *slog.Logger
	maxPerSession int

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(logger *slog.Logger, maxPerSession int) *Registry {
	return &Registry{
		logger:        logger.With(slog.String("component", "session_registry")),
		maxPerSession: maxPerSession,
		sessions:      make(map[string]*Session),
	}
}

// NewSession registers a fresh session for the given profile. The identifier
// must not collide with a live session; authentication paths look the
// registry up first and recycle instead.
func (r *Registry) NewSession(user *User) (*Session, error) {
	identifier := IdentifierFor(user.Username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[identifier]; exists {
		return nil, Statef("session %q already registered", identifier)
	}
	s := &Session{
		registry:   r,
		identifier: identifier,
		user:       user,
		attachedAt: make(map[*Connection]time.Time),
	}
	r.sessions[identifier] = s
	r.logger.Debug("Session registered", slog.String("identifier", identifier))
	return s, nil
}

// Find looks a session up by identifier in O(1).
func (r *Registry) Find(identifier string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identifier]
	return s, ok
}

// All returns every live session sorted by identifier.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier() < out[j].Identifier()
	})
	return out
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions that have had no connection for longer than maxIdle
// and returns how many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for identifier, s := range r.sessions {
		s.mu.RLock()
		idle := len(s.connections) == 0 && time.Since(s.lastDetach) > maxIdle
		s.mu.RUnlock()
		if idle {
			delete(r.sessions, identifier)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("Swept idle sessions", slog.Int("count", removed))
	}
	return removed
}

func (r *Registry) rekey(s *Session, oldIdentifier, newIdentifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[oldIdentifier] == s {
		delete(r.sessions, oldIdentifier)
	}
	r.sessions[newIdentifier] = s
	r.logger.Debug("Session rekeyed",
		slog.String("from", oldIdentifier),
		slog.String("to", newIdentifier))
}
