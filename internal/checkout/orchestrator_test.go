package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

type fakeCheckoutBackend struct {
	mu sync.Mutex

	OrderCalls   []string
	SessionCalls []string

	OrderErr    error
	SessionErr  error
	CheckoutURL string

	// ReleaseOrder, when non-nil, blocks CheckoutCart until closed.
	ReleaseOrder chan struct{}
}

func (f *fakeCheckoutBackend) CheckoutCart(ctx context.Context, cartID string) (*api.Order, error) {
	if f.ReleaseOrder != nil {
		<-f.ReleaseOrder
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OrderCalls = append(f.OrderCalls, cartID)
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	return &api.Order{ID: "order-1"}, nil
}

func (f *fakeCheckoutBackend) CreateCheckoutSession(ctx context.Context, orderID string) (*api.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SessionCalls = append(f.SessionCalls, orderID)
	if f.SessionErr != nil {
		return nil, f.SessionErr
	}
	return &api.CheckoutSession{OrderID: api.ID(orderID), CheckoutURL: f.CheckoutURL}, nil
}

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

type recordingNavigator struct {
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(url string) error {
	n.urls = append(n.urls, url)
	return n.err
}

func TestOrchestrator_HappyPath(t *testing.T) {
	backend := &fakeCheckoutBackend{CheckoutURL: "https://pay.example.com/cs_123"}
	nav := &recordingNavigator{}
	store := profile.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "cart_id", "cart-1"))

	o := NewOrchestrator(backend, staticTokens("tok"), nav, store)

	require.NoError(t, o.Checkout(ctx, "cart-1"))

	assert.Equal(t, []string{"cart-1"}, backend.OrderCalls)
	assert.Equal(t, []string{"order-1"}, backend.SessionCalls)
	assert.Equal(t, []string{"https://pay.example.com/cs_123"}, nav.urls)
	assert.Equal(t, StateRedirectingToPayment, o.State())

	// The cart id must survive the redirect so a cancelled payment
	// still shows the original cart.
	entry, err := store.Get(ctx, "cart_id")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", entry.Value)

	// The pending order is recorded for the return leg.
	pending, err := store.Get(ctx, PendingOrderKey)
	require.NoError(t, err)
	assert.Equal(t, "order-1", pending.Value)
}

func TestOrchestrator_UnauthenticatedNeverCreatesOrder(t *testing.T) {
	backend := &fakeCheckoutBackend{CheckoutURL: "https://pay.example.com/cs_123"}
	nav := &recordingNavigator{}

	o := NewOrchestrator(backend, staticTokens(""), nav, profile.NewMemoryStore())

	err := o.Checkout(context.Background(), "cart-1")

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, backend.OrderCalls, "no order-creation call may be issued")
	assert.Empty(t, nav.urls)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_OrderFailureRevertsToIdle(t *testing.T) {
	backend := &fakeCheckoutBackend{OrderErr: assert.AnError}
	nav := &recordingNavigator{}

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	err := o.Checkout(context.Background(), "cart-1")

	require.Error(t, err)
	assert.Empty(t, backend.SessionCalls)
	assert.Empty(t, nav.urls)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_SessionFailureLeavesOrderBehind(t *testing.T) {
	backend := &fakeCheckoutBackend{SessionErr: assert.AnError}
	nav := &recordingNavigator{}

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	err := o.Checkout(context.Background(), "cart-1")

	require.Error(t, err)
	assert.Len(t, backend.OrderCalls, 1, "the order was created and is not compensated")
	assert.Empty(t, nav.urls)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_MissingCheckoutURLIsFatal(t *testing.T) {
	backend := &fakeCheckoutBackend{CheckoutURL: ""}
	nav := &recordingNavigator{}

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	err := o.Checkout(context.Background(), "cart-1")

	assert.ErrorIs(t, err, ErrNoCheckoutURL)
	assert.Empty(t, nav.urls)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_RejectsReentrantInvocation(t *testing.T) {
	backend := &fakeCheckoutBackend{
		CheckoutURL:  "https://pay.example.com/cs_123",
		ReleaseOrder: make(chan struct{}),
	}
	nav := &recordingNavigator{}

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	firstDone := make(chan error, 1)
	go func() { firstDone <- o.Checkout(context.Background(), "cart-1") }()

	// Wait until the first attempt is inside the order step.
	require.Eventually(t, func() bool { return o.State() == StateCreatingOrder },
		time.Second, time.Millisecond)

	err := o.Checkout(context.Background(), "cart-1")
	assert.ErrorIs(t, err, ErrInFlight)

	close(backend.ReleaseOrder)
	require.NoError(t, <-firstDone)
	assert.Len(t, backend.OrderCalls, 1)
}

func TestOrchestrator_RepeatedCallsAttemptFreshPairs(t *testing.T) {
	backend := &fakeCheckoutBackend{CheckoutURL: "https://pay.example.com/cs_123"}
	nav := &recordingNavigator{}
	ctx := context.Background()

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	require.NoError(t, o.Checkout(ctx, "cart-1"))
	require.NoError(t, o.Checkout(ctx, "cart-1"))

	assert.Len(t, backend.OrderCalls, 2)
	assert.Len(t, backend.SessionCalls, 2)
}

func TestOrchestrator_NavigationFailureRevertsToIdle(t *testing.T) {
	backend := &fakeCheckoutBackend{CheckoutURL: "https://pay.example.com/cs_123"}
	nav := &recordingNavigator{err: assert.AnError}

	o := NewOrchestrator(backend, staticTokens("tok"), nav, profile.NewMemoryStore())

	err := o.Checkout(context.Background(), "cart-1")

	require.Error(t, err)
	assert.Equal(t, StateIdle, o.State())
}
