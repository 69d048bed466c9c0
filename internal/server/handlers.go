package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/pkg/protocol"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,16}$`)

func (a *App) handleTextFrame(ctx context.Context, conn *chat.Connection, frame []byte) {
	envelope, err := protocol.Decode(frame)
	if err != nil {
		conn.SendError(chat.Transportf("malformed frame: %v", err))
		return
	}
	event, err := protocol.ParseInboundEvent(envelope.Event)
	if err != nil {
		conn.SendError(err)
		return
	}

	switch event {
	case protocol.EventRegister:
		err = a.handleRegister(conn, envelope.Data)
	case protocol.EventLogin:
		err = a.handleLogin(conn, envelope.Data)
	case protocol.EventSetToken:
		err = a.handleSetToken(conn, envelope.Data)
	case protocol.EventMessage:
		err = a.handleMessage(ctx, conn, envelope.Data)
	case protocol.EventPing:
		conn.HandlePing()
	case protocol.EventPong:
		conn.HandlePong()
	}
	if err != nil {
		conn.SendError(err)
	}
}

func (a *App) handleRegister(conn *chat.Connection, data json.RawMessage) error {
	username := gjson.GetBytes(data, "username").String()
	password := gjson.GetBytes(data, "password").String()
	if !usernamePattern.MatchString(username) {
		return chat.Validationf("invalid value for parameter %q", "username")
	}
	if len(password) < 4 || len(password) > 512 {
		return chat.Validationf("invalid value for parameter %q", "password")
	}
	user, err := a.db.CreateUser(username, password)
	if err != nil {
		return err
	}
	a.authSuccessful(conn, user)
	return nil
}

func (a *App) handleLogin(conn *chat.Connection, data json.RawMessage) error {
	username := gjson.GetBytes(data, "username").String()
	password := gjson.GetBytes(data, "password").String()
	user, err := a.db.Authenticate(username, password)
	if err != nil {
		return err
	}
	a.authSuccessful(conn, user)
	return nil
}

// handleSetToken resumes an account from a previously issued token. A bad
// token is answered with a null auth-token so the client drops its stored
// credential, never with a connection close.
func (a *App) handleSetToken(conn *chat.Connection, data json.RawMessage) error {
	token := AuthToken{
		UserID:    gjson.GetBytes(data, "userId").Int(),
		Timestamp: gjson.GetBytes(data, "timestamp").Int(),
		Signature: gjson.GetBytes(data, "signature").String(),
	}
	userID, err := a.tokens.Verify(&token)
	if err != nil {
		conn.Send(protocol.OutAuthToken, nil)
		return nil
	}
	user, err := a.db.GetUserByID(userID)
	if err != nil {
		conn.Send(protocol.OutAuthToken, nil)
		return nil
	}
	a.authSuccessful(conn, user)
	return nil
}

func (a *App) handleMessage(ctx context.Context, conn *chat.Connection, data json.RawMessage) error {
	var line string
	if err := json.Unmarshal(data, &line); err != nil {
		return chat.Validationf("message payload must be a string")
	}
	room := conn.Room()
	if room == nil {
		return chat.Statef("you are not in a room")
	}
	return room.HandleLine(ctx, line, conn)
}

// authSuccessful upgrades the connection's session to the given account.
// When a session for that account already exists (another tab, or a
// recently disconnected one still in its grace period), the connection
// migrates there so the account keeps a single session.
func (a *App) authSuccessful(conn *chat.Connection, user *chat.User) {
	identifier := chat.IdentifierFor(user.Username)
	if existing, ok := a.registry.Find(identifier); ok {
		if existing != conn.Session() {
			existing.AttachConnection(conn)
		}
	} else {
		conn.Session().SetUser(user)
	}
	session := conn.Session()

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		a.logger.Error("Failed to issue auth token",
			slog.String("identifier", identifier), slog.Any("error", err))
	} else {
		conn.Send(protocol.OutAuthToken, token)
	}
	conn.Send(protocol.OutSetOP, a.manager.IsOP(session))

	if room := conn.Room(); room != nil {
		room.ExecuteConnectionAuthenticated(conn)
	}
	a.manager.SendRoomList(session)
}
