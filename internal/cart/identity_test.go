package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

// fakeBackend is an in-memory Backend recording calls, in the style of
// the store mocks: configurable errors plus an optional hook fired
// mid-removal so tests can observe the optimistic view.
type fakeBackend struct {
	mu    sync.Mutex
	carts map[string]*api.Cart

	nextCart    int
	CreateCalls int
	GetCalls    []string
	AddCalls    []string
	RemoveCalls []string

	CreateErr  error
	AddErr     error
	RemoveErr  error
	GetErr     error
	RemoveHook func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{carts: make(map[string]*api.Cart)}
}

func (f *fakeBackend) seed(cart *api.Cart) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[string(cart.ID)] = cart
}

func (f *fakeBackend) CreateCart(ctx context.Context) (*api.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextCart++
	cart := &api.Cart{ID: api.ID(fmt.Sprintf("cart-%d", f.nextCart)), Items: []api.CartItem{}}
	f.carts[string(cart.ID)] = cart
	return cart, nil
}

func (f *fakeBackend) GetCart(ctx context.Context, cartID string) (*api.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls = append(f.GetCalls, cartID)
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, &api.Error{Status: 404, Detail: "Cart not found"}
	}
	clone := *cart
	clone.Items = append([]api.CartItem(nil), cart.Items...)
	return &clone, nil
}

func (f *fakeBackend) AddCartItem(ctx context.Context, cartID, productID string, quantity int) (*api.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddCalls = append(f.AddCalls, productID)
	if f.AddErr != nil {
		return nil, f.AddErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, &api.Error{Status: 404, Detail: "Cart not found"}
	}
	for i, it := range cart.Items {
		if string(it.Product.ID) == productID {
			cart.Items[i].Quantity = quantity
			item := cart.Items[i]
			return &item, nil
		}
	}
	item := api.CartItem{
		ID:       api.ID(fmt.Sprintf("item-%d", len(cart.Items)+1)),
		Product:  api.Product{ID: api.ID(productID)},
		Quantity: quantity,
	}
	cart.Items = append(cart.Items, item)
	return &item, nil
}

func (f *fakeBackend) RemoveCartItem(ctx context.Context, cartID, itemID string) error {
	if f.RemoveHook != nil {
		f.RemoveHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoveCalls = append(f.RemoveCalls, itemID)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return &api.Error{Status: 404, Detail: "Cart not found"}
	}
	for i, it := range cart.Items {
		if string(it.ID) == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return &api.Error{Status: 404, Detail: "Item not found"}
}

// ============================================
// IdentityManager Tests
// ============================================

func TestIdentityManager_CreatesWhenNothingStored(t *testing.T) {
	backend := newFakeBackend()
	store := profile.NewMemoryStore()
	manager := NewIdentityManager(backend, store)
	ctx := context.Background()

	cartID, err := manager.GetOrCreate(ctx)

	require.NoError(t, err)
	assert.Equal(t, "cart-1", cartID)
	assert.Equal(t, 1, backend.CreateCalls, "exactly one cart-creation call")

	entry, err := store.Get(ctx, cartKey)
	require.NoError(t, err)
	assert.Equal(t, cartID, entry.Value, "stored id matches the created cart's id")
}

func TestIdentityManager_ReturnsValidStoredID(t *testing.T) {
	backend := newFakeBackend()
	backend.seed(&api.Cart{ID: "cart-live", Items: []api.CartItem{}})
	store := profile.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cartKey, "cart-live"))

	manager := NewIdentityManager(backend, store)

	cartID, err := manager.GetOrCreate(ctx)

	require.NoError(t, err)
	assert.Equal(t, "cart-live", cartID)
	assert.Equal(t, 0, backend.CreateCalls, "a live stored id needs no creation")
	assert.Equal(t, []string{"cart-live"}, backend.GetCalls, "validated exactly once")
}

func TestIdentityManager_RecreatesWhenStoredIDIsStale(t *testing.T) {
	backend := newFakeBackend()
	store := profile.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cartKey, "cart-dead"))

	manager := NewIdentityManager(backend, store)

	cartID, err := manager.GetOrCreate(ctx)

	require.NoError(t, err)
	assert.NotEqual(t, "cart-dead", cartID, "a rejected id is never reused")
	assert.Equal(t, 1, backend.CreateCalls, "exactly one new cart created")

	entry, err := store.Get(ctx, cartKey)
	require.NoError(t, err)
	assert.Equal(t, cartID, entry.Value)
}

func TestIdentityManager_CreationFailureIsFatal(t *testing.T) {
	backend := newFakeBackend()
	backend.CreateErr = assert.AnError
	manager := NewIdentityManager(backend, profile.NewMemoryStore())

	_, err := manager.GetOrCreate(context.Background())

	assert.ErrorIs(t, err, assert.AnError)
}

func TestIdentityManager_ValidationTransportErrorPropagates(t *testing.T) {
	backend := newFakeBackend()
	backend.GetErr = assert.AnError
	store := profile.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cartKey, "cart-x"))

	manager := NewIdentityManager(backend, store)

	_, err := manager.GetOrCreate(ctx)

	// Only a definite not-found is recoverable; a transport failure is
	// not evidence of staleness.
	require.Error(t, err)
	assert.Equal(t, 0, backend.CreateCalls)
}

func TestIdentityManager_ClearForgetsCartOnly(t *testing.T) {
	backend := newFakeBackend()
	store := profile.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "access_token", "tok"))

	manager := NewIdentityManager(backend, store)
	_, err := manager.GetOrCreate(ctx)
	require.NoError(t, err)

	require.NoError(t, manager.Clear(ctx))

	_, err = store.Get(ctx, cartKey)
	assert.ErrorIs(t, err, profile.ErrKeyNotFound)
	_, ok := manager.Claim(ctx)
	assert.False(t, ok)

	// Token and cart id have no transactional link.
	entry, err := store.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", entry.Value)
}

func TestIdentityManager_ClaimStampChangesPerClaim(t *testing.T) {
	backend := newFakeBackend()
	store := profile.NewMemoryStore()
	manager := NewIdentityManager(backend, store)
	ctx := context.Background()

	_, err := manager.GetOrCreate(ctx)
	require.NoError(t, err)
	first, ok := manager.Claim(ctx)
	require.True(t, ok)

	require.NoError(t, manager.Clear(ctx))
	_, err = manager.GetOrCreate(ctx)
	require.NoError(t, err)
	second, ok := manager.Claim(ctx)
	require.True(t, ok)

	assert.NotEqual(t, first, second)
}
