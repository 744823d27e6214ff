package auth

import (
	"errors"
	"fmt"
)

// Error is an authentication fault: no session, or a token that could not be
// refreshed. Callers should send the user back through login.
type Error struct {
	CharacterID int64
	Reason      string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.CharacterID != 0 {
		msg = fmt.Sprintf("character %d: %s", e.CharacterID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "auth: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthError reports whether err is, or wraps, an *Error.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
