// Package auth defines the error taxonomy shared by the authentication
// protocol and the transport layer. Every failure inside the protocol is
// classified into one of a fixed set of kinds; the transport maps kinds to
// response codes with a total switch, and user-facing messages stay generic
// while the underlying cause is kept for operator logs.
package auth

import "fmt"

// Kind classifies an authentication failure.
type Kind int

const (
	// KindInvalidArgument means nothing attacker-meaningful was submitted,
	// e.g. the challenge field was missing or not an armored message.
	KindInvalidArgument Kind = iota

	// KindBadRequest means credentials were submitted but are
	// cryptographically or structurally invalid.
	KindBadRequest

	// KindNotFound means the request was well-formed but the referenced
	// user does not resolve to an active account.
	KindNotFound

	// KindInvalidRefreshKey means the presented refresh token is not
	// active or has expired. Reuse of a rotated token lands here and
	// doubles as the replay signal.
	KindInvalidRefreshKey

	// KindInternal means server misconfiguration or a persistence
	// failure. Never attacker-controlled.
	KindInternal
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindInvalidRefreshKey:
		return "invalid_refresh_key"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a kinded authentication error. Message is safe to return to the
// caller; the wrapped cause is for operators only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// NewError creates an Error of the given kind. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As and operator logging.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the full diagnostic detail for operator logs, combining the
// public message with the wrapped cause when present.
func (e *Error) Cause() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

// KindOf returns the kind of err when it is an *Error, and KindInternal
// otherwise: an unclassified failure is treated as a server-side fault,
// never surfaced with detail.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
