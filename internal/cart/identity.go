package cart

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

const (
	cartKey = "cart_id"

	// claimKey stamps each locally claimed cart id with a fresh uuid so
	// a concurrent claim by another process of the same profile is at
	// least detectable. Full cross-process coordination is out of scope.
	claimKey = "cart_claim"
)

// Backend is the slice of the storefront API the cart packages use.
type Backend interface {
	CreateCart(ctx context.Context) (*api.Cart, error)
	GetCart(ctx context.Context, cartID string) (*api.Cart, error)
	AddCartItem(ctx context.Context, cartID, productID string, quantity int) (*api.CartItem, error)
	RemoveCartItem(ctx context.Context, cartID, itemID string) error
}

// IdentityManager owns the mapping from this profile to a server-side
// cart id. A stored id is believed valid but never trusted: it is
// revalidated against the server before being handed out.
type IdentityManager struct {
	backend Backend
	profile profile.Store
}

func NewIdentityManager(backend Backend, p profile.Store) *IdentityManager {
	return &IdentityManager{backend: backend, profile: p}
}

// GetOrCreate returns a cart id that referenced a live server cart at
// the moment of return. A stored id that the server no longer knows is
// discarded and replaced; the extra round trip is the price of never
// returning a dead reference. Creation failure propagates.
func (m *IdentityManager) GetOrCreate(ctx context.Context) (string, error) {
	entry, err := m.profile.Get(ctx, cartKey)
	switch {
	case err == nil:
		if _, verr := m.backend.GetCart(ctx, entry.Value); verr == nil {
			return entry.Value, nil
		} else if !errors.Is(verr, api.ErrNotFound) {
			return "", fmt.Errorf("failed to validate cart %s: %w", entry.Value, verr)
		}
		// Stale id: recoverable, fall through to creation.
		log.Printf("[CartIdentity] Stored cart %s is gone, creating a new one", entry.Value)
		if derr := m.profile.Delete(ctx, cartKey); derr != nil {
			return "", derr
		}
	case !errors.Is(err, profile.ErrKeyNotFound):
		return "", fmt.Errorf("failed to read stored cart id: %w", err)
	}

	created, err := m.backend.CreateCart(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create cart: %w", err)
	}
	if err := m.persist(ctx, string(created.ID)); err != nil {
		return "", err
	}
	return string(created.ID), nil
}

// Clear forgets the stored cart id, so the next GetOrCreate starts a
// fresh cart. The bearer token is a separate key and is left alone.
func (m *IdentityManager) Clear(ctx context.Context) error {
	if err := m.profile.Delete(ctx, cartKey); err != nil {
		return fmt.Errorf("failed to clear cart id: %w", err)
	}
	return m.profile.Delete(ctx, claimKey)
}

// Claim returns the stamp written when this process last claimed a cart
// id, if any. A changed stamp means another process took over the
// profile's cart.
func (m *IdentityManager) Claim(ctx context.Context) (string, bool) {
	entry, err := m.profile.Get(ctx, claimKey)
	if err != nil {
		return "", false
	}
	return entry.Value, true
}

func (m *IdentityManager) persist(ctx context.Context, cartID string) error {
	if err := m.profile.Set(ctx, cartKey, cartID); err != nil {
		return fmt.Errorf("failed to persist cart id: %w", err)
	}
	if err := m.profile.Set(ctx, claimKey, uuid.NewString()); err != nil {
		return fmt.Errorf("failed to stamp cart claim: %w", err)
	}
	return nil
}
