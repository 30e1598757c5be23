// Package listview binds a (page, pageSize, filter) tuple to a slice and
// turns the slice state into a renderable table model.
package listview

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"drip-admin-console/internal/slice"
)

// Query is the tuple a list view fetches with
type Query struct {
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Filter   string `json:"filter,omitempty"`
}

// View keeps the current query of one entity list
type View struct {
	slice   *slice.Slice
	columns []string

	mu      sync.Mutex
	query   Query
	mounted bool
}

// Option configures a View
type Option func(*View)

// WithColumns fixes the rendered columns instead of deriving them
func WithColumns(columns ...string) Option {
	return func(v *View) { v.columns = columns }
}

// New creates a view on page 1
func New(s *slice.Slice, pageSize int, opts ...Option) *View {
	v := &View{
		slice: s,
		query: Query{Page: 1, PageSize: pageSize},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ParsePageRoute reads the page of a "/{entity}/page/{n}" route; anything
// missing or invalid means page 1
func ParsePageRoute(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Query returns the current tuple
func (v *View) Query() Query {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Mount performs the initial fetch
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	v.mounted = true
	q := v.query
	v.mu.Unlock()

	return v.fetch(ctx, q)
}

// Apply switches to q and refetches when the tuple changed or the view was
// never mounted. Zero page or page size keep their current value.
func (v *View) Apply(ctx context.Context, q Query) error {
	return v.load(ctx, q, false)
}

// Reload is Apply with an unconditional refetch
func (v *View) Reload(ctx context.Context, q Query) error {
	return v.load(ctx, q, true)
}

func (v *View) load(ctx context.Context, q Query, force bool) error {
	v.mu.Lock()
	next := v.query
	if q.Page > 0 {
		next.Page = q.Page
	}
	if q.PageSize > 0 {
		next.PageSize = q.PageSize
	}
	next.Filter = q.Filter

	changed := next != v.query || !v.mounted
	v.query = next
	v.mounted = true
	v.mu.Unlock()

	if !changed && !force {
		return nil
	}
	return v.fetch(ctx, next)
}

// SetPage moves to page
func (v *View) SetPage(ctx context.Context, page int) error {
	q := v.Query()
	q.Page = page
	return v.Apply(ctx, q)
}

// SetFilter changes the filter and returns to page 1
func (v *View) SetFilter(ctx context.Context, filter string) error {
	q := v.Query()
	if q.Filter == filter {
		return nil
	}
	q.Filter = filter
	q.Page = 1
	return v.Apply(ctx, q)
}

// Refresh refetches the current tuple unconditionally
func (v *View) Refresh(ctx context.Context) error {
	return v.fetch(ctx, v.Query())
}

func (v *View) fetch(ctx context.Context, q Query) error {
	return v.slice.FetchPage(ctx, q.Page, q.PageSize, q.Filter)
}

// Render builds the table model from the current slice state
func (v *View) Render() Model {
	return Render(v.slice.State(), v.columns...)
}
