package esi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any ESI response rejected for a missing or invalid token.
var ErrUnauthorized = errors.New("esi: unauthorized")

// Error is a non-200 ESI response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ESI %d: %s", e.StatusCode, e.Body)
}

// Is makes 401/403 responses match ErrUnauthorized.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// IsNotFound reports whether err is an ESI 404.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}
