package chat

// Right levels. Guests sit below every registered user so commands can opt
// in to guest access with RightGuest.
const (
	RightGuest = -1
	RightUser  = 0
	RightOP    = 100
)

// User is the profile a session represents. Guests get a synthetic profile
// with a negative right; registered users come out of storage.
type User struct {
	ID       int64
	Username string
	Right    int
	OP       bool
}

// SanitizedUser is the wire form of a profile. Redaction for low-right
// viewers zeroes Right out-of-place, never mutating the original.
type SanitizedUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Right    int    `json:"right"`
	OP       bool   `json:"op"`
}

func (u *User) Sanitized() SanitizedUser {
	return SanitizedUser{
		ID:       u.ID,
		Username: u.Username,
		Right:    u.Right,
		OP:       u.OP,
	}
}

// NewGuestUser builds the profile backing a fresh guest session.
func NewGuestUser(identifier string) *User {
	return &User{
		ID:       0,
		Username: identifier,
		Right:    RightGuest,
	}
}
