package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound reports that the requested resource does not exist.
	// A stored cart id producing this on validation is stale, not fatal.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized reports a missing, invalid, or expired credential.
	// By the time a caller sees it the global policy has already cleared
	// the token store.
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a non-2xx response from the storefront backend.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Detail)
}

// Is maps well-known statuses onto the package sentinels so callers can
// dispatch with errors.Is without inspecting status codes.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}
