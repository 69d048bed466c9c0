package poll

import "github.com/parleychat/parley/internal/chat"

// Register wires the poll plugin into the catalogue.
func Register(ps *chat.PluginSet) {
	ps.RegisterRoomPlugin("poll", NewPlugin)
}
