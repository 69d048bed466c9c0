package core

import "github.com/parleychat/parley/internal/chat"

// Store is what the core plugins need from persistence.
type Store interface {
	OPStore
	HistoryStore
}

// Register wires the core plugins into the catalogue.
func Register(ps *chat.PluginSet, store Store) {
	ps.RegisterRoomPlugin("message", func(room *chat.Room) chat.Plugin {
		return NewMessagePlugin(room, store)
	})
	ps.RegisterRoomPlugin("room", NewRoomPlugin)
	ps.RegisterGlobalPlugin("connectedlist", NewConnectedListPlugin)
	ps.RegisterGlobalPlugin("kick", NewKickPlugin)
	ps.RegisterGlobalPlugin("op", func(m *chat.Manager) chat.Plugin {
		return NewOpPlugin(m, store)
	})
}
