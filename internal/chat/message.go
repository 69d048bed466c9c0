package chat

import "time"

// Message is one unit of room content. IDs are globally unique and monotonic
// across the process, seeded from persisted boot state.
type Message struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Author    SanitizedUser  `json:"user"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created"`
}

// NewNeutralUser is the synthetic author for server-generated messages.
func NewNeutralUser() *User {
	return &User{Username: "parley", Right: RightOP, OP: true}
}
