package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

// PendingOrderKey is where the orchestrator records the order awaiting
// payment, for the callback handler to confirm against once control
// returns.
const PendingOrderKey = "pending_order_id"

// State tracks one checkout attempt through the handoff sequence.
type State int

const (
	StateIdle State = iota
	StateAuthCheck
	StateCreatingOrder
	StateCreatingPaymentSession
	StateRedirectingToPayment // terminal: control leaves the application
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthCheck:
		return "auth_check"
	case StateCreatingOrder:
		return "creating_order"
	case StateCreatingPaymentSession:
		return "creating_payment_session"
	case StateRedirectingToPayment:
		return "redirecting_to_payment"
	}
	return "unknown"
}

var (
	// ErrAuthRequired means checkout was attempted without a credential.
	// No order is created; the caller should prompt for login.
	ErrAuthRequired = errors.New("authentication required before checkout")

	// ErrNoCheckoutURL means the payment provider returned no redirect
	// target. Fatal for this attempt; nothing to retry client-side.
	ErrNoCheckoutURL = errors.New("payment provider returned no checkout URL")

	// ErrInFlight rejects re-entrant invocation while an attempt runs.
	ErrInFlight = errors.New("a checkout attempt is already in flight")
)

// Backend is the slice of the storefront API checkout uses.
type Backend interface {
	CheckoutCart(ctx context.Context, cartID string) (*api.Order, error)
	CreateCheckoutSession(ctx context.Context, orderID string) (*api.CheckoutSession, error)
}

// TokenSource answers the auth gate. Empty token means anonymous.
type TokenSource interface {
	Token() string
}

// Navigator performs the full navigation to the external processor.
type Navigator interface {
	Navigate(url string) error
}

// Orchestrator converts a cart into an order and hands the session off
// to the external payment processor. Each Checkout call attempts a
// fresh order/session pair; there is no deduplication beyond rejecting
// overlap, and no compensation for a created order whose session step
// failed (the server keeps the orphan).
type Orchestrator struct {
	mu    sync.Mutex
	busy  bool
	state State

	backend Backend
	tokens  TokenSource
	nav     Navigator
	profile profile.Store
}

func NewOrchestrator(backend Backend, tokens TokenSource, nav Navigator, p profile.Store) *Orchestrator {
	return &Orchestrator{backend: backend, tokens: tokens, nav: nav, profile: p}
}

// State returns the current state of the machine.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Checkout drives Idle -> AuthCheck -> CreatingOrder ->
// CreatingPaymentSession -> RedirectingToPayment. Any failure reverts to
// Idle and is surfaced. The cart id is deliberately not cleared here:
// returning from a cancelled payment must still show the original cart.
func (o *Orchestrator) Checkout(ctx context.Context, cartID string) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrInFlight
	}
	o.busy = true
	o.state = StateAuthCheck
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	// Checkout never creates an order for an unauthenticated caller.
	if o.tokens.Token() == "" {
		o.setState(StateIdle)
		return ErrAuthRequired
	}

	o.setState(StateCreatingOrder)
	order, err := o.backend.CheckoutCart(ctx, cartID)
	if err != nil {
		o.setState(StateIdle)
		return fmt.Errorf("failed to create order: %w", err)
	}
	log.Printf("[Checkout] Created order %s from cart %s", order.ID, cartID)

	o.setState(StateCreatingPaymentSession)
	session, err := o.backend.CreateCheckoutSession(ctx, string(order.ID))
	if err != nil {
		// The order stays behind server-side; no compensation here.
		o.setState(StateIdle)
		return fmt.Errorf("failed to create payment session for order %s: %w", order.ID, err)
	}
	if session.CheckoutURL == "" {
		o.setState(StateIdle)
		return ErrNoCheckoutURL
	}

	if o.profile != nil {
		if err := o.profile.Set(ctx, PendingOrderKey, string(order.ID)); err != nil {
			log.Printf("[Checkout] Failed to record pending order %s: %v", order.ID, err)
		}
	}

	o.setState(StateRedirectingToPayment)
	if err := o.nav.Navigate(session.CheckoutURL); err != nil {
		o.setState(StateIdle)
		return fmt.Errorf("failed to navigate to payment: %w", err)
	}
	return nil
}
