package catalog

import (
	"context"
	"fmt"

	"github.com/example/ec-storefront/internal/api"
)

// DefaultPerPage matches the storefront's list view.
const DefaultPerPage = 20

// Backend is the slice of the storefront API the catalog uses.
type Backend interface {
	ListProducts(ctx context.Context, query string, page, perPage int) (*api.ProductPage, error)
}

// Browser pages through catalog search results. The catalog itself is
// an external collaborator; this only tracks the query and position.
type Browser struct {
	backend Backend
	perPage int

	query string
	page  int
	total int
}

func NewBrowser(backend Backend) *Browser {
	return &Browser{backend: backend, perPage: DefaultPerPage, page: 1}
}

// Search starts a new query from page one.
func (b *Browser) Search(ctx context.Context, query string) (*api.ProductPage, error) {
	b.query = query
	b.page = 1
	return b.fetch(ctx)
}

// Next advances one page, clamped to the last.
func (b *Browser) Next(ctx context.Context) (*api.ProductPage, error) {
	if b.page < b.TotalPages() {
		b.page++
	}
	return b.fetch(ctx)
}

// Prev goes back one page, clamped to the first.
func (b *Browser) Prev(ctx context.Context) (*api.ProductPage, error) {
	if b.page > 1 {
		b.page--
	}
	return b.fetch(ctx)
}

// Page reports the current position.
func (b *Browser) Page() int { return b.page }

// TotalPages derives the page count from the last fetched total; at
// least one page even when empty.
func (b *Browser) TotalPages() int {
	pages := (b.total + b.perPage - 1) / b.perPage
	if pages < 1 {
		return 1
	}
	return pages
}

func (b *Browser) fetch(ctx context.Context) (*api.ProductPage, error) {
	result, err := b.backend.ListProducts(ctx, b.query, b.page, b.perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	b.total = result.Total
	return result, nil
}
