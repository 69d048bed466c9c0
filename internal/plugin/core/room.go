package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/parleychat/parley/internal/chat"
)

var (
	roomNamePattern     = regexp.MustCompile(`.+`)
	roomPropertyPattern = regexp.MustCompile(`^(name)$`)
	roomPluginPattern   = regexp.MustCompile(`^(\+|-)([A-Za-z0-9]+)$`)
	roomIDPattern       = regexp.MustCompile(`^[0-9]+$`)
	identifierPattern   = regexp.MustCompile(`^[a-z0-9*#_-]+$`)
)

// RoomPlugin carries every room management command: creation, renaming,
// plugin toggling, whitelist changes, joining, leaving, and deletion.
type RoomPlugin struct {
	room *chat.Room
}

func NewRoomPlugin(room *chat.Room) chat.Plugin {
	return &RoomPlugin{room: room}
}

func (p *RoomPlugin) Name() string { return "room" }

func (p *RoomPlugin) Aliases() []string {
	return []string{"roomcreate", "roomprivate", "roomset", "roomjoin", "roomleave", "roomdelete", "roomplugin", "roomallow", "roomunallow"}
}

func (p *RoomPlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"roomcreate": {
			MinCount: 0,
			MaxCount: chat.NoLimit,
			Params:   []chat.Param{{Name: "name", Pattern: roomNamePattern}},
			OPOnly:   true,
		},
		"roomprivate": {
			MinCount: 0,
			MaxCount: chat.NoLimit,
			Params:   []chat.Param{{Name: "name", Pattern: roomNamePattern}},
		},
		"roomset": {
			MinCount: 2,
			MaxCount: chat.NoLimit,
			Params: []chat.Param{
				{Name: "property", Pattern: roomPropertyPattern},
				{Name: "value", Pattern: roomNamePattern},
			},
		},
		"roomjoin": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.Param{{Name: "room id", Pattern: roomIDPattern}},
		},
		"roomleave":  {MinCount: 0, MaxCount: 0},
		"roomdelete": {MinCount: 0, MaxCount: 0},
		"roomplugin": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.Param{{Name: "plugin", Pattern: roomPluginPattern}},
		},
		"roomallow": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.Param{{Name: "identifier", Pattern: identifierPattern}},
		},
		"roomunallow": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.Param{{Name: "identifier", Pattern: identifierPattern}},
		},
	}
}

func (p *RoomPlugin) Run(ctx context.Context, alias, param string, c *chat.Connection) error {
	switch alias {
	case "roomcreate":
		return p.handleCreate(param, c)
	case "roomprivate":
		return p.handleCreatePrivate(param, c)
	case "roomset":
		return p.handleSet(param, c)
	case "roomjoin":
		return p.handleJoin(param, c)
	case "roomleave":
		return p.handleLeave(c)
	case "roomdelete":
		return p.handleDelete(c)
	case "roomplugin":
		return p.handlePlugin(param, c)
	case "roomallow":
		return p.handleAllow(param, c)
	case "roomunallow":
		return p.handleUnallow(param, c)
	}
	return chat.NotFoundf("unknown room action %q", alias)
}

// canManageRoom: private rooms are managed by their whitelisted members,
// public rooms by operators.
func (p *RoomPlugin) canManageRoom(session *chat.Session, room *chat.Room) bool {
	if room.IsPrivate() {
		return room.IsAllowed(session.Identifier())
	}
	return room.Manager().IsOP(session)
}

func (p *RoomPlugin) handleCreate(param string, c *chat.Connection) error {
	room := p.room.Manager().CreateRoom(strings.TrimSpace(param))
	p.room.Manager().SendRoomListToAll()
	c.SendInfo(fmt.Sprintf("Room %d has been created", room.ID()))
	return nil
}

func (p *RoomPlugin) handleCreatePrivate(param string, c *chat.Connection) error {
	session := c.Session()
	if session.User().Right < chat.RightUser {
		return chat.Permissionf("guests cannot create private rooms")
	}
	room := p.room.Manager().CreatePrivateRoom(strings.TrimSpace(param), session.Identifier())
	p.room.Manager().SendRoomList(session)
	room.AttachConnection(c)
	return nil
}

func (p *RoomPlugin) handleSet(param string, c *chat.Connection) error {
	if !p.canManageRoom(c.Session(), p.room) {
		return chat.Permissionf("you do not have the permission to modify this room")
	}
	property, value, _ := strings.Cut(param, " ")
	value = strings.TrimSpace(value)

	switch property {
	case "name":
		p.room.SetName(value)
	default:
		return chat.Validationf("invalid property %q", property)
	}
	p.room.Manager().SendRoomListToAll()
	c.SendInfo(fmt.Sprintf("Room property %s set to %s", property, value))
	return nil
}

func (p *RoomPlugin) handleJoin(param string, c *chat.Connection) error {
	id, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil {
		return chat.Validationf("invalid value for parameter %q", "room id")
	}
	room, ok := p.room.Manager().FindRoom(id)
	if !ok {
		return chat.NotFoundf("room %d does not exist", id)
	}
	if !room.IsAllowed(c.Session().Identifier()) {
		return chat.Permissionf("you are not allowed in room %d", id)
	}
	room.AttachConnection(c)
	return nil
}

func (p *RoomPlugin) handleLeave(c *chat.Connection) error {
	if !p.room.IsPrivate() {
		return chat.Statef("you can not leave a public room")
	}
	if len(p.room.Whitelist()) == 1 {
		return chat.Statef("you can not leave this room, you are the last user in it")
	}
	identifier := c.Session().Identifier()
	if err := p.room.Unallow(identifier); err != nil {
		return err
	}
	manager := p.room.Manager()
	manager.MainRoom().AttachConnection(c)
	manager.SendRoomList(c.Session())
	for _, allowed := range p.room.Whitelist() {
		if session, ok := manager.Registry().Find(allowed); ok {
			manager.SendRoomList(session)
		}
	}
	return nil
}

func (p *RoomPlugin) handleDelete(c *chat.Connection) error {
	if p.room.IsPrivate() && len(p.room.Whitelist()) > 1 {
		return chat.Statef("you can not delete this room, others are still in it")
	}
	if !p.canManageRoom(c.Session(), p.room) {
		return chat.Permissionf("you do not have the permission to delete this room")
	}
	id := p.room.ID()
	if err := p.room.Manager().DeleteRoom(id); err != nil {
		return err
	}
	p.room.Manager().SendRoomListToAll()
	c.SendInfo(fmt.Sprintf("Room %d has been deleted", id))
	return nil
}

func (p *RoomPlugin) handlePlugin(param string, c *chat.Connection) error {
	if p.room.IsPrivate() {
		return chat.Statef("unable to customize plugins in private rooms")
	}
	if !p.room.Manager().IsOP(c.Session()) {
		return chat.Permissionf("only operators can manage public room plugins")
	}
	param = strings.TrimSpace(param)
	if !roomPluginPattern.MatchString(param) {
		return chat.Validationf("invalid value for parameter %q", "plugin")
	}
	add := strings.HasPrefix(param, "+")
	pluginName := param[1:]

	if add {
		if err := p.room.EnablePlugin(pluginName); err != nil {
			return err
		}
		c.SendInfo(fmt.Sprintf("Plugin %s has been enabled", pluginName))
		return nil
	}
	if err := p.room.DisablePlugin(pluginName); err != nil {
		return err
	}
	c.SendInfo(fmt.Sprintf("Plugin %s has been disabled", pluginName))
	return nil
}

func (p *RoomPlugin) handleAllow(param string, c *chat.Connection) error {
	if !p.room.IsPrivate() {
		return chat.Statef("only private rooms have a whitelist")
	}
	if !p.canManageRoom(c.Session(), p.room) {
		return chat.Permissionf("you do not have the permission to modify this room")
	}
	identifier := chat.IdentifierFor(strings.TrimSpace(param))
	if err := p.room.Allow(identifier); err != nil {
		return err
	}
	if session, ok := p.room.Manager().Registry().Find(identifier); ok {
		p.room.Manager().SendRoomList(session)
	}
	c.SendInfo(fmt.Sprintf("%s is now allowed in this room", identifier))
	return nil
}

func (p *RoomPlugin) handleUnallow(param string, c *chat.Connection) error {
	if !p.canManageRoom(c.Session(), p.room) {
		return chat.Permissionf("you do not have the permission to modify this room")
	}
	if len(p.room.Whitelist()) == 1 {
		return chat.Statef("you can not remove the last member of this room")
	}
	identifier := chat.IdentifierFor(strings.TrimSpace(param))
	if err := p.room.Unallow(identifier); err != nil {
		return err
	}
	c.SendInfo(fmt.Sprintf("%s is no longer allowed in this room", identifier))
	return nil
}
