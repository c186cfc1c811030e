package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ID is an opaque server-assigned identifier. The storefront never
// interprets ids; this type only smooths over backends that serialize
// them as JSON numbers instead of strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Product is immutable from the client's perspective; the storefront
// only ever references it.
type Product struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
}

type CartItem struct {
	ID       ID      `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is the client-side line total, for display only. The server
// owns every derived figure that matters.
func (it CartItem) Subtotal() decimal.Decimal {
	return it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Cart is the authoritative server state as of the last fetch. A cart
// with no items and a cart that does not exist are distinct server-side
// but both present as empty here.
type Cart struct {
	ID    ID         `json:"id"`
	Items []CartItem `json:"items"`
}

// Total sums the line subtotals, for display only.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Order is created server-side from a cart at checkout. The client holds
// its id and, when asked, its paid status; the lifecycle is the server's.
type Order struct {
	ID          ID              `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount,omitempty"`
	Paid        bool            `json:"paid,omitempty"`
	Status      string          `json:"status,omitempty"`
}

// CheckoutSession is the payment processor's one-time redirect target.
type CheckoutSession struct {
	OrderID     ID     `json:"order_id,omitempty"`
	CheckoutURL string `json:"checkout_url"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

type User struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active,omitempty"`
}

// ProductPage is one page of catalog search results.
type ProductPage struct {
	Items   []Product `json:"items"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}
