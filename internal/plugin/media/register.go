package media

import "github.com/parleychat/parley/internal/chat"

// Register wires the media plugin into the catalogue with the given resolver.
func Register(ps *chat.PluginSet, resolver Resolver) {
	ps.RegisterRoomPlugin("media", func(room *chat.Room) chat.Plugin {
		return New(room, resolver)
	})
}
