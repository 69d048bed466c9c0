// Package storage backs the chat core with its two persistence concerns:
// the sqlite account/history database and the json boot-state file holding
// the process counters.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/parleychat/parley/internal/chat"
)

type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(logger *slog.Logger, path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	d := &DB{db: db, logger: logger.With(slog.String("component", "storage"))}
	if err := d.createTables(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(50) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		user_right INTEGER NOT NULL DEFAULT 0,
		op INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY,
		room_id INTEGER NOT NULL,
		author VARCHAR(50) NOT NULL,
		content TEXT NOT NULL,
		meta TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// CreateUser registers a new account with a bcrypt-hashed password.
func (d *DB) CreateUser(username, password string) (*chat.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	result, err := d.db.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, string(hashedPassword),
	)
	if err != nil {
		return nil, chat.Statef("username %q is already taken", username)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetUserByID(id)
}

// Authenticate verifies a username/password pair.
func (d *DB) Authenticate(username, password string) (*chat.User, error) {
	var user chat.User
	var hash string
	err := d.db.QueryRow(
		"SELECT id, username, password_hash, user_right, op FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &hash, &user.Right, &user.OP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.Permissionf("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, chat.Permissionf("invalid credentials")
	}
	return &user, nil
}

func (d *DB) GetUserByID(userID int64) (*chat.User, error) {
	var user chat.User
	err := d.db.QueryRow(
		"SELECT id, username, user_right, op FROM users WHERE id = ?",
		userID,
	).Scan(&user.ID, &user.Username, &user.Right, &user.OP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.NotFoundf("user %d does not exist", userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetOP persists an operator grant.
func (d *DB) SetOP(userID int64, op bool) error {
	_, err := d.db.Exec("UPDATE users SET op = ? WHERE id = ?", op, userID)
	return err
}

// SaveMessage appends one message to a room's history.
func (d *DB) SaveMessage(ctx context.Context, roomID int, msg *chat.Message) error {
	var meta []byte
	if msg.Meta != nil {
		var err error
		meta, err = json.Marshal(msg.Meta)
		if err != nil {
			return err
		}
	}
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO messages (id, room_id, author, content, meta, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, roomID, msg.Author.Username, msg.Content, meta, msg.CreatedAt,
	)
	return err
}

// RecentMessages loads the newest messages of a room, oldest first.
func (d *DB) RecentMessages(ctx context.Context, roomID int, limit int) ([]*chat.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, author, content, meta, created_at FROM
			(SELECT * FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC`,
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		msg := &chat.Message{}
		var meta sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Author.Username, &msg.Content, &meta, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &msg.Meta); err != nil {
				d.logger.Warn("Skipping unreadable message meta", slog.Int64("messageID", msg.ID))
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
