package profile

import (
	"context"
	"errors"
	"time"
)

var ErrKeyNotFound = errors.New("profile key not found")

// Entry is a stored profile value together with its last-modified stamp.
// The stamp lets callers detect when another process of the same profile
// has rewritten a key behind their back.
type Entry struct {
	Value     string
	UpdatedAt time.Time
}

// Store persists per-profile client state: the bearer token and the cart
// identifier live here, each under its own key with an independent
// lifecycle. Clearing one key never touches the other.
type Store interface {
	// Get returns the entry for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Set writes key to value and refreshes its last-modified stamp.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
