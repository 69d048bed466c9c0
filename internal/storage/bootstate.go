package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// guestIDLimit wraps the guest counter so identities stay short-ish.
const guestIDLimit = int64(1e10)

type storedState struct {
	GuestID   int64 `json:"guestId"`
	MessageID int64 `json:"messageId"`
}

// BootState holds the process counters that survive restarts: the next guest
// identity and the next globally unique message id. A missing or corrupt
// state file resets both to zero instead of failing.
type BootState struct {
	logger *slog.Logger
	path   string

	mu        sync.Mutex
	guestID   int64
	messageID int64
}

func LoadBootState(logger *slog.Logger, path string) *BootState {
	b := &BootState{
		logger: logger.With(slog.String("component", "boot_state")),
		path:   path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		b.logger.Warn("No boot state file, starting from zero", slog.Any("error", err))
		return b
	}
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		b.logger.Warn("Corrupt boot state file, resetting to zero", slog.Any("error", err))
		return b
	}
	b.guestID = stored.GuestID
	b.messageID = stored.MessageID
	return b
}

// Seed overrides both counters with externally supplied values.
func (b *BootState) Seed(guestID, messageID int64) {
	b.mu.Lock()
	b.guestID = guestID
	b.messageID = messageID
	b.mu.Unlock()
}

// NextGuestID mints the next guest identity number.
func (b *BootState) NextGuestID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.guestID >= guestIDLimit {
		b.guestID = 0
	}
	b.guestID++
	return b.guestID
}

// NextMessageID mints the next globally unique message id.
func (b *BootState) NextMessageID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messageID++
	return b.messageID
}

// Save writes the current counters to disk.
func (b *BootState) Save() error {
	b.mu.Lock()
	stored := storedState{GuestID: b.guestID, MessageID: b.messageID}
	b.mu.Unlock()

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o644)
}
