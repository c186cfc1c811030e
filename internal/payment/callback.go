package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

// Outcome describes one completed return leg from the payment processor.
type Outcome struct {
	Success   bool
	SessionID string
	OrderID   string
	// Confirmed is set when server-side confirmation ran and agreed the
	// order is paid. Without a checker the redirect alone is trusted.
	Confirmed bool
}

// CartClearer forgets the stored cart id so the next visit starts fresh.
type CartClearer interface {
	Clear(ctx context.Context) error
}

// OrderChecker verifies payment server-side before local state is
// cleared. The redirect query parameter is only a hint; the processor
// owns the real completion signal.
type OrderChecker interface {
	GetOrder(ctx context.Context, orderID string) (*api.Order, error)
}

// Handler serves the two fixed routes the processor redirects back to.
// The success leg clears the stored cart id; the cancel leg leaves it
// untouched so the cart is intact for retry.
type Handler struct {
	carts    CartClearer
	profile  profile.Store
	checker  OrderChecker // nil: trust the redirect, as the source behavior does
	outcomes chan Outcome
}

type Option func(*Handler)

// WithConfirmation makes the success leg verify the pending order's
// paid status before clearing local state, instead of trusting the
// session id in the return URL.
func WithConfirmation(checker OrderChecker) Option {
	return func(h *Handler) { h.checker = checker }
}

func NewHandler(carts CartClearer, p profile.Store, opts ...Option) *Handler {
	h := &Handler{
		carts:    carts,
		profile:  p,
		outcomes: make(chan Outcome, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Outcomes delivers one Outcome per completed return leg.
func (h *Handler) Outcomes() <-chan Outcome {
	return h.outcomes
}

// Routes returns the mux for the processor's two return routes.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/success", h.handleSuccess)
	mux.HandleFunc("/cancel", h.handleCancel)
	return mux
}

func (h *Handler) handleSuccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		// No success indicator: nothing may be cleared.
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	outcome := Outcome{Success: true, SessionID: sessionID}

	if pending, err := h.profile.Get(ctx, checkout.PendingOrderKey); err == nil {
		outcome.OrderID = pending.Value
	}

	if h.checker != nil {
		if err := h.confirm(ctx, outcome.OrderID); err != nil {
			log.Printf("[Payment] Not clearing cart: %v", err)
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(w, "Payment is still being processed. Your cart has been kept.")
			return
		}
		outcome.Confirmed = true
	}

	if err := h.carts.Clear(ctx); err != nil {
		log.Printf("[Payment] Failed to clear cart id: %v", err)
	}
	if err := h.profile.Delete(ctx, checkout.PendingOrderKey); err != nil {
		log.Printf("[Payment] Failed to clear pending order: %v", err)
	}

	h.publish(outcome)
	fmt.Fprintln(w, "Payment successful! Thank you for your purchase. Your order is now being processed.")
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The stored cart id stays untouched: the items are still waiting.
	h.publish(Outcome{Success: false})
	fmt.Fprintln(w, "Payment cancelled. Your order was not processed and no charges were made. Your items are still in your cart.")
}

func (h *Handler) confirm(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("no pending order recorded for this session")
	}
	order, err := h.checker.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to check order %s: %w", orderID, err)
	}
	if !order.Paid {
		return fmt.Errorf("order %s is not paid yet", orderID)
	}
	return nil
}

// publish never blocks the HTTP handler; if nobody is draining the
// channel the outcome is dropped.
func (h *Handler) publish(o Outcome) {
	select {
	case h.outcomes <- o:
	default:
	}
}
