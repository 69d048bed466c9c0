package chat

import (
	"errors"
	"fmt"
)

// Kind classifies command and protocol failures. Every dispatch error is
// converted to an `error` envelope for the originating connection only.
type Kind int

const (
	KindValidation Kind = iota
	KindPermission
	KindRateLimit
	KindState
	KindNotFound
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindRateLimit:
		return "rate_limit"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error is a user-facing failure. Its message is sent verbatim to the client.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func Permissionf(format string, args ...any) *Error {
	return newError(KindPermission, format, args...)
}

func RateLimitf(format string, args ...any) *Error {
	return newError(KindRateLimit, format, args...)
}

func Statef(format string, args ...any) *Error {
	return newError(KindState, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Transportf(format string, args ...any) *Error {
	return newError(KindTransport, format, args...)
}

// KindOf extracts the failure class, defaulting to state for plain errors.
func KindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindState
}
