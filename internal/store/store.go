// Package store is the composition root of the per-entity slices: one slice
// per registered entity and one reorder controller per reorderable entity.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/reorder"
	"drip-admin-console/internal/slice"

	"golang.org/x/sync/errgroup"
)

// warmupConcurrency bounds the parallel first-page fetches of RefreshAll
const warmupConcurrency = 4

// Store holds every slice; slices share no state
type Store struct {
	registry    *entities.Registry
	slices      map[string]*slice.Slice
	controllers map[string]*reorder.Controller
}

// New builds one slice per entity in registry using gateway
func New(registry *entities.Registry, gateway slice.Gateway, opts ...slice.Option) *Store {
	s := &Store{
		registry:    registry,
		slices:      make(map[string]*slice.Slice),
		controllers: make(map[string]*reorder.Controller),
	}

	for _, e := range registry.All() {
		sl := slice.New(e, gateway, opts...)
		s.slices[e.Name] = sl

		if e.Reorderable {
			controller, err := reorder.NewController(sl)
			if err != nil {
				slog.Warn("Skipping reorder controller", "entity", e.Name, "error", err)
				continue
			}
			s.controllers[e.Name] = controller
		}
	}

	slog.Info("Store initialized", "entities", len(s.slices), "reorderable", len(s.controllers))
	return s
}

// Registry returns the entity registry the store was built from
func (s *Store) Registry() *entities.Registry {
	return s.registry
}

// Slice returns the slice for entity
func (s *Store) Slice(entity string) (*slice.Slice, error) {
	e, err := s.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	return s.slices[e.Name], nil
}

// Reorder returns the reorder controller for entity
func (s *Store) Reorder(entity string) (*reorder.Controller, error) {
	e, err := s.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	controller, ok := s.controllers[e.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", reorder.ErrNotReorderable, e.Name)
	}
	return controller, nil
}

// Subscribe registers fn on the slice of entity
func (s *Store) Subscribe(entity string, fn func(slice.State)) (func(), error) {
	sl, err := s.Slice(entity)
	if err != nil {
		return nil, err
	}
	return sl.Subscribe(fn), nil
}

// Snapshot returns a read-only copy of every slice state, keyed by entity
func (s *Store) Snapshot() map[string]slice.State {
	out := make(map[string]slice.State, len(s.slices))
	for name, sl := range s.slices {
		out[name] = sl.State()
	}
	return out
}

// Entities returns the entity names in a stable order
func (s *Store) Entities() []string {
	names := make([]string, 0, len(s.slices))
	for name := range s.slices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshAll fetches the first page of every entity concurrently. Individual
// failures stay in their slices; the joined error is returned for logging.
func (s *Store) RefreshAll(ctx context.Context, pageSize int) error {
	var (
		g    errgroup.Group
		errs = make([]error, len(s.registry.All()))
	)
	g.SetLimit(warmupConcurrency)

	for i, e := range s.registry.All() {
		i := i // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		sl := s.slices[e.Name]
		g.Go(func() error {
			if err := sl.FetchPage(ctx, 1, pageSize, ""); err != nil {
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("Dashboard warm-up finished with errors", "error", err)
	} else {
		slog.Info("Dashboard warm-up finished", "entities", len(errs))
	}
	return err
}
