// Package reorder implements manual drag-and-drop ordering over the complete
// unpaginated set of an entity.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"drip-admin-console/internal/models"
	"drip-admin-console/internal/slice"
)

var (
	// ErrNotReorderable is returned for entities without a persisted order
	ErrNotReorderable = errors.New("entity does not support manual ordering")
	// ErrIndexOutOfRange is returned when a drop references a missing position
	ErrIndexOutOfRange = errors.New("reorder index out of range")
	// ErrNotLoaded is returned when dropping before the full set was loaded
	ErrNotLoaded = errors.New("full list not loaded")
)

// Move removes the element at from and re-inserts it at to.
// The input is not modified.
func Move(items []models.Resource, from, to int) ([]models.Resource, error) {
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return nil, fmt.Errorf("%w: move %d -> %d over %d items", ErrIndexOutOfRange, from, to, len(items))
	}

	out := make([]models.Resource, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)

	moved := items[from]
	out = append(out, models.Resource{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out, nil
}

// BatchFor assigns order = index to every item
func BatchFor(items []models.Resource) models.ReorderBatch {
	batch := make(models.ReorderBatch, len(items))
	for i, item := range items {
		batch[i] = models.ReorderItem{ResourceID: item.ID, Order: i}
	}
	return batch
}

// Controller drives ordering for one entity through its slice
type Controller struct {
	slice *slice.Slice

	// drops are applied one at a time so the last drop's array wins
	mu sync.Mutex
}

// NewController returns a controller, or ErrNotReorderable
func NewController(s *slice.Slice) (*Controller, error) {
	if !s.Entity().Reorderable {
		return nil, fmt.Errorf("%w: %s", ErrNotReorderable, s.Entity().Name)
	}
	return &Controller{slice: s}, nil
}

// Load fetches the complete unpaginated set
func (c *Controller) Load(ctx context.Context) ([]models.Resource, error) {
	if err := c.slice.FetchAll(ctx); err != nil {
		return nil, err
	}
	return c.Items(), nil
}

// Loaded reports whether the full set has been fetched
func (c *Controller) Loaded() bool {
	return c.slice.State().Full.Loaded
}

// Items returns the current full-set order
func (c *Controller) Items() []models.Resource {
	return c.slice.State().Full.Items
}

// Drop moves one record and submits the resulting full order. The local
// order is published before the backend answers and kept if the save fails.
func (c *Controller) Drop(ctx context.Context, from, to int) ([]models.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.slice.State()
	if !state.Full.Loaded {
		return nil, ErrNotLoaded
	}

	moved, err := Move(state.Full.Items, from, to)
	if err != nil {
		return nil, err
	}
	batch := BatchFor(moved)

	slog.Debug("Submitting new order",
		"entity", state.Entity,
		"from", from,
		"to", to,
		"items", len(batch))

	if err := c.slice.Reorder(ctx, batch); err != nil {
		return c.Items(), err
	}
	return c.Items(), nil
}
