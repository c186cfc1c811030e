package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TokenSource supplies the bearer credential attached to every request
// and is cleared when the server rejects it. An empty token means
// anonymous.
type TokenSource interface {
	Token() string
	Clear()
}

// Client talks to the storefront backend. The bearer-injection and
// unauthorized-handling policies live in the single request path here,
// so no call site can forget them.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource attaches a credential source consulted on every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler registers the redirect-to-login hook invoked
// whenever any endpoint rejects the credential. The token source has
// already been cleared when it runs.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one request. JSON bodies are marshaled from body (nil for
// none); *url.Values bodies are form-encoded. A non-nil out receives the
// decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := "application/json"

	switch b := body.(type) {
	case nil:
	case *url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		var errBody struct {
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil {
			apiErr.Detail = errBody.Detail
		}

		// Cross-cutting policy: an unauthorized response from any
		// endpoint invalidates the credential globally.
		if resp.StatusCode == http.StatusUnauthorized {
			if c.tokens != nil {
				c.tokens.Clear()
			}
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

// Cart endpoints

func (c *Client) CreateCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/carts", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) GetCart(ctx context.Context, cartID string) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddCartItem upserts a line item; the server decides how quantity
// combines with an existing line.
func (c *Client) AddCartItem(ctx context.Context, cartID, productID string, quantity int) (*CartItem, error) {
	body := struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}{ProductID: productID, Quantity: quantity}

	var item CartItem
	if err := c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) RemoveCartItem(ctx context.Context, cartID, itemID string) error {
	path := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(itemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CheckoutCart converts the cart into an order server-side.
func (c *Client) CheckoutCart(ctx context.Context, cartID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/checkout", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Order endpoints

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Payment endpoints

func (c *Client) CreateCheckoutSession(ctx context.Context, orderID string) (*CheckoutSession, error) {
	body := struct {
		OrderID string `json:"order_id"`
	}{OrderID: orderID}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/payments/create-checkout-session", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Catalog endpoints

func (c *Client) ListProducts(ctx context.Context, query string, page, perPage int) (*ProductPage, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	var result ProductPage
	if err := c.do(ctx, http.MethodGet, "/products?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Auth endpoints

// Login exchanges credentials for a bearer token using the password
// form flow. The caller decides whether to persist the token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token Token
	if err := c.do(ctx, http.MethodPost, "/auth/token", &form, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var user User
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", body, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}{Token: token, NewPassword: newPassword}
	return c.do(ctx, http.MethodPost, "/auth/reset-password", body, nil)
}
