package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/example/ec-storefront/internal/api"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrCartGone reports a mutation against a cart id the server no
	// longer recognizes. The caller re-derives a fresh id through the
	// IdentityManager and retries; the engine never invents a local
	// empty cart.
	ErrCartGone = errors.New("cart no longer exists on the server")
)

// Engine keeps a locally rendered cart synchronized with authoritative
// server state. Every mutation ends in a refresh, because the server
// computes derived fields the client must not assume. Removal is the
// one optimistic operation: the local view drops the item before the
// request is issued, and any divergence is resolved within one round
// trip, confirm or revert.
//
// Mutations are serialized by an in-flight guard, so overlapping calls
// from the same session are strictly ordered rather than racing. The
// local view has its own lock and stays readable mid-operation.
type Engine struct {
	opMu sync.Mutex // serializes mutations

	viewMu sync.RWMutex
	view   api.Cart
	synced bool

	backend Backend
}

func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend}
}

// Current returns the locally rendered cart and whether any server
// state has been loaded yet.
func (e *Engine) Current() (api.Cart, bool) {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return cloneCart(e.view), e.synced
}

// Fetch re-establishes ground truth from the server.
func (e *Engine) Fetch(ctx context.Context, cartID string) (api.Cart, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.refresh(ctx, cartID)
}

// AddItem upserts a line item. The view reflects the previous state
// until the server confirms; only the closing refresh replaces it.
func (e *Engine) AddItem(ctx context.Context, cartID, productID string, quantity int) (api.Cart, error) {
	return e.upsertItem(ctx, cartID, productID, quantity)
}

// SetItemQuantity adjusts a line to the given quantity through the same
// upsert endpoint, with the same non-optimistic semantics as AddItem.
func (e *Engine) SetItemQuantity(ctx context.Context, cartID, productID string, quantity int) (api.Cart, error) {
	return e.upsertItem(ctx, cartID, productID, quantity)
}

func (e *Engine) upsertItem(ctx context.Context, cartID, productID string, quantity int) (api.Cart, error) {
	// Rejected before any network call.
	if quantity < 1 {
		return e.currentView(), ErrInvalidQuantity
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if _, err := e.backend.AddCartItem(ctx, cartID, productID, quantity); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return e.currentView(), fmt.Errorf("cart %s: %w", cartID, ErrCartGone)
		}
		return e.currentView(), fmt.Errorf("failed to update item %s: %w", productID, err)
	}

	return e.refresh(ctx, cartID)
}

// RemoveItem removes a line item optimistically: the local view drops it
// immediately, keeping the interaction responsive regardless of network
// latency. On success a confirming refresh follows; on failure the view
// is unconditionally rebuilt from the server, restoring the item if the
// delete never took effect, and the error is surfaced.
func (e *Engine) RemoveItem(ctx context.Context, cartID, itemID string) (api.Cart, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	// Phase 1: tentative local patch.
	prior, priorSynced := e.snapshot()
	e.setView(pruneItem(prior, itemID))

	// Phase 2: confirm or revert, synchronously with the outcome.
	if err := e.backend.RemoveCartItem(ctx, cartID, itemID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			// Distinguish a vanished cart from a vanished item: only the
			// former is the caller's identity problem. Either way the
			// tentative patch must not outlive the failure.
			if _, gerr := e.backend.GetCart(ctx, cartID); errors.Is(gerr, api.ErrNotFound) {
				e.restore(prior, priorSynced)
				return e.currentView(), fmt.Errorf("cart %s: %w", cartID, ErrCartGone)
			}
		}

		view, rerr := e.refresh(ctx, cartID)
		if rerr != nil {
			// Could not re-synchronize; the pre-removal snapshot is the
			// best local truth available.
			log.Printf("[Engine] Revert refresh failed for cart %s: %v", cartID, rerr)
			e.restore(prior, priorSynced)
			view = prior
		}
		return view, fmt.Errorf("failed to remove item %s: %w", itemID, err)
	}

	return e.refresh(ctx, cartID)
}

// refresh fetches the authoritative cart and replaces the local view.
// Callers hold opMu.
func (e *Engine) refresh(ctx context.Context, cartID string) (api.Cart, error) {
	fetched, err := e.backend.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return e.currentView(), fmt.Errorf("cart %s: %w", cartID, ErrCartGone)
		}
		return e.currentView(), fmt.Errorf("failed to fetch cart %s: %w", cartID, err)
	}
	e.setView(*fetched)
	return e.currentView(), nil
}

func (e *Engine) currentView() api.Cart {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return cloneCart(e.view)
}

func (e *Engine) snapshot() (api.Cart, bool) {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return cloneCart(e.view), e.synced
}

// restore rolls the view back to a snapshot, including whether server
// state had ever been loaded. A tentative patch on a never-synced view
// must not leave behind a fabricated synced one.
func (e *Engine) restore(c api.Cart, synced bool) {
	e.viewMu.Lock()
	e.view = cloneCart(c)
	e.synced = synced
	e.viewMu.Unlock()
}

func (e *Engine) setView(c api.Cart) {
	e.viewMu.Lock()
	e.view = cloneCart(c)
	e.synced = true
	e.viewMu.Unlock()
}

func pruneItem(c api.Cart, itemID string) api.Cart {
	pruned := api.Cart{ID: c.ID, Items: make([]api.CartItem, 0, len(c.Items))}
	for _, it := range c.Items {
		if string(it.ID) != itemID {
			pruned.Items = append(pruned.Items, it)
		}
	}
	return pruned
}

func cloneCart(c api.Cart) api.Cart {
	clone := api.Cart{ID: c.ID}
	if c.Items != nil {
		clone.Items = append([]api.CartItem(nil), c.Items...)
	}
	return clone
}
