package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/parleychat/parley/pkg/protocol"
)

// MessageStore is the persistence boundary for room content. The concrete
// implementation lives outside the core.
type MessageStore interface {
	SaveMessage(ctx context.Context, roomID int, msg *Message) error
}

// MainRoomID is reserved for the default room every connection lands in.
const MainRoomID = 0

// RoomInfo is one directory entry of the room list pushed to clients.
type RoomInfo struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	IsPrivate bool     `json:"isPrivate"`
	Whitelist []string `json:"whitelist,omitempty"`
	Members   int      `json:"members"`
}

// ManagerOptions carries the collaborators a room manager needs.
type ManagerOptions struct {
	Registry       *Registry
	Store          MessageStore
	Plugins        *PluginSet
	DefaultPlugins []string
	IsOP           func(identifier string) bool
	NextMessageID  func() int64
}

// Manager creates, looks up, and deletes rooms, and owns the global plugin
// instances. Room ids are monotonic and never reused.
type Manager struct {
	logger   *slog.Logger
	registry *Registry
	store    MessageStore
	plugins  *PluginSet

	defaultPlugins []string
	isOP           func(string) bool
	nextMessageID  func() int64

	mu            sync.RWMutex
	rooms         map[int]*Room
	nextRoomID    int
	globalPlugins []Plugin
}

func NewManager(logger *slog.Logger, opts ManagerOptions) *Manager {
	m := &Manager{
		logger:         logger.With(slog.String("component", "room_manager")),
		registry:       opts.Registry,
		store:          opts.Store,
		plugins:        opts.Plugins,
		defaultPlugins: opts.DefaultPlugins,
		isOP:           opts.IsOP,
		nextMessageID:  opts.NextMessageID,
		rooms:          make(map[int]*Room),
		nextRoomID:     MainRoomID,
	}
	if m.isOP == nil {
		m.isOP = func(string) bool { return false }
	}
	if m.nextMessageID == nil {
		var counter int64
		m.nextMessageID = func() int64 { counter++; return counter }
	}
	m.globalPlugins = m.plugins.buildGlobals(m)

	// The main room always exists.
	m.CreateRoom("Main")
	return m
}

// Registry exposes the session registry to plugins.
func (m *Manager) Registry() *Registry { return m.registry }

// GlobalPlugins returns the process-wide plugin instances.
func (m *Manager) GlobalPlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plugin, len(m.globalPlugins))
	copy(out, m.globalPlugins)
	return out
}

// IsOP reports whether the session holds operator rights.
func (m *Manager) IsOP(s *Session) bool {
	return s.User().OP || m.isOP(s.Identifier())
}

// CreateRoom registers a new public room under the next id.
func (m *Manager) CreateRoom(name string) *Room {
	m.mu.Lock()
	id := m.nextRoomID
	m.nextRoomID++
	room := newRoom(id, name, m, m.logger)
	m.rooms[id] = room
	m.mu.Unlock()

	for _, pluginName := range m.defaultPlugins {
		if err := room.EnablePlugin(pluginName); err != nil {
			m.logger.Warn("Skipping default plugin",
				slog.String("plugin", pluginName),
				slog.Any("error", err))
		}
	}
	m.logger.Info("Room created", slog.Int("roomID", id), slog.String("name", name))
	return room
}

// CreatePrivateRoom registers a whitelisted room seeded with its founder.
func (m *Manager) CreatePrivateRoom(name, founderIdentifier string) *Room {
	room := m.CreateRoom(name)
	room.mu.Lock()
	room.isPrivate = true
	room.whitelist = []string{founderIdentifier}
	room.mu.Unlock()
	return room
}

// FindRoom looks a room up by id.
func (m *Manager) FindRoom(id int) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// MainRoom returns the default room.
func (m *Manager) MainRoom() *Room {
	room, _ := m.FindRoom(MainRoomID)
	return room
}

// Rooms returns every room in ascending id order.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DeleteRoom removes a room. The main room is permanent, and a private room
// still holding more than one whitelisted identity cannot be deleted.
// Remaining member connections are moved back to the main room.
func (m *Manager) DeleteRoom(id int) error {
	if id == MainRoomID {
		return Statef("the main room cannot be deleted")
	}
	room, ok := m.FindRoom(id)
	if !ok {
		return NotFoundf("room %d does not exist", id)
	}
	if room.IsPrivate() && len(room.Whitelist()) > 1 {
		return Statef("room %d still has other members", id)
	}

	main := m.MainRoom()
	for _, c := range room.Connections() {
		main.AttachConnection(c)
	}

	m.mu.Lock()
	delete(m.rooms, id)
	m.mu.Unlock()
	room.closePlugins()
	m.logger.Info("Room deleted", slog.Int("roomID", id))
	return nil
}

// RoomList builds the directory as seen by one identity: private rooms are
// visible only to their whitelisted members.
func (m *Manager) RoomList(identifier string) []RoomInfo {
	rooms := m.Rooms()
	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		if room.IsPrivate() && !room.IsAllowed(identifier) {
			continue
		}
		info := RoomInfo{
			ID:        room.ID(),
			Name:      room.Name(),
			IsPrivate: room.IsPrivate(),
			Members:   len(room.Connections()),
		}
		if room.IsPrivate() {
			info.Whitelist = room.Whitelist()
		}
		out = append(out, info)
	}
	return out
}

// SendRoomList pushes the current directory to every connection of one
// session.
func (m *Manager) SendRoomList(s *Session) {
	s.Send(protocol.OutRoomList, m.RoomList(s.Identifier()))
}

// SendRoomListToAll refreshes the directory for every live session.
func (m *Manager) SendRoomListToAll() {
	for _, s := range m.registry.All() {
		m.SendRoomList(s)
	}
}
