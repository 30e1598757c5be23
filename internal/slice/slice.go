// Package slice implements the per-entity client cache: one page of records,
// the unpaginated full set used for manual ordering, and the mutation
// operations that patch both in place from the backend's responses.
//
// Concurrent operations are not coordinated. Whichever response arrives last
// overwrites the state it touches, unless the slice was created with
// WithStaleResponseGuard. Subscribers see snapshots in the order the changes
// were applied and must not start a slice operation from inside the callback.
package slice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/notify"
)

var (
	// ErrInvalidPage is returned for a page number below 1
	ErrInvalidPage = errors.New("page must be a positive number")
	// ErrInvalidPageSize is returned for a page size below 1
	ErrInvalidPageSize = errors.New("page size must be a positive number")
)

// Gateway is the subset of the API client a slice needs
type Gateway interface {
	ListPage(ctx context.Context, e entities.Entity, q client.ListQuery) (*models.Page, error)
	ListAll(ctx context.Context, e entities.Entity) ([]models.Resource, error)
	Create(ctx context.Context, e entities.Entity, payload models.MutationPayload) (models.Resource, error)
	Update(ctx context.Context, e entities.Entity, id string, payload models.MutationPayload) (models.Resource, error)
	DeleteResource(ctx context.Context, e entities.Entity, id string) error
	ToggleStatus(ctx context.Context, e entities.Entity, id string) (models.Resource, error)
	UpdateOrder(ctx context.Context, e entities.Entity, batch models.ReorderBatch) ([]models.Resource, error)
}

// ResourceList is one cached page of an entity. IsLoading is set while a
// fetch or a mutation of the entity is in flight.
type ResourceList struct {
	Items      []models.Resource
	Page       int
	PageSize   int
	Filter     string
	TotalPages int
	TotalItems int
	IsLoading  bool
	LastError  error
}

// FullList is the unpaginated read model
type FullList struct {
	Items     []models.Resource
	Loaded    bool
	IsLoading bool
	LastError error
}

// State is a read-only snapshot of a slice
type State struct {
	Entity      string
	StatusField string
	List        ResourceList
	Full        FullList
	TaskLoading bool
	TaskError   error
}

// Slice owns the cache and mutation state of one entity
type Slice struct {
	entity   entities.Entity
	gateway  Gateway
	notifier notify.Notifier

	mu            sync.Mutex
	list          ResourceList
	full          FullList
	taskError     error
	fetchInFlight int
	allInFlight   int
	taskInFlight  int

	guardStale  bool
	issuedFetch uint64

	// pubMu keeps snapshot delivery in mutation order
	pubMu       sync.Mutex
	subMu       sync.RWMutex
	subscribers map[int]func(State)
	nextSubID   int
}

// Option configures a Slice
type Option func(*Slice)

// WithNotifier sets the toast notifier
func WithNotifier(n notify.Notifier) Option {
	return func(s *Slice) { s.notifier = n }
}

// WithStaleResponseGuard discards page responses overtaken by a newer fetch
func WithStaleResponseGuard() Option {
	return func(s *Slice) { s.guardStale = true }
}

// New creates an empty slice for entity
func New(entity entities.Entity, gateway Gateway, opts ...Option) *Slice {
	s := &Slice{
		entity:      entity,
		gateway:     gateway,
		notifier:    notify.Discard{},
		list:        ResourceList{Items: []models.Resource{}},
		full:        FullList{Items: []models.Resource{}},
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entity returns the descriptor this slice serves
func (s *Slice) Entity() entities.Entity {
	return s.entity
}

// State returns a snapshot of the slice
func (s *Slice) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after every change
func (s *Slice) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// FetchPage replaces the cached page with page/pageSize/filter. On failure
// the previous items stay visible and LastError is set.
func (s *Slice) FetchPage(ctx context.Context, page, pageSize int, filter string) error {
	if page < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	if pageSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}

	var seq uint64
	s.mutate(func() {
		s.fetchInFlight++
		s.issuedFetch++
		seq = s.issuedFetch
	})

	result, err := s.gateway.ListPage(ctx, s.entity, client.ListQuery{Page: page, Items: pageSize, Filter: filter})

	stale := false
	s.mutate(func() {
		s.fetchInFlight--

		if s.guardStale && seq != s.issuedFetch {
			stale = true
			return
		}
		if err != nil {
			s.list.LastError = err
			return
		}

		items := result.Items
		if len(items) > pageSize {
			slog.Warn("Backend returned more items than requested, truncating",
				"entity", s.entity.Name,
				"requested", pageSize,
				"received", len(items))
			items = items[:pageSize]
		}

		s.list.Items = append([]models.Resource{}, items...)
		s.list.Page = page
		s.list.PageSize = pageSize
		s.list.Filter = filter
		s.list.TotalPages = result.Pagination.TotalPages
		s.list.TotalItems = result.Pagination.TotalItems
		s.list.LastError = nil
	})

	if stale {
		slog.Debug("Discarded stale page response", "entity", s.entity.Name, "page", page, "seq", seq)
		return nil
	}
	if err != nil {
		s.notifier.Error(s.entity.Name, "fetch", err)
		return fmt.Errorf("fetch %s page %d: %w", s.entity.Name, page, err)
	}

	slog.Debug("Page fetched",
		"entity", s.entity.Name,
		"page", page,
		"page_size", pageSize,
		"items", len(result.Items),
		"total_items", result.Pagination.TotalItems)
	return nil
}

// FetchAll loads the complete unpaginated set into the full read model
func (s *Slice) FetchAll(ctx context.Context) error {
	s.mutate(func() {
		s.allInFlight++
		s.full.IsLoading = true
	})

	items, err := s.gateway.ListAll(ctx, s.entity)

	s.mutate(func() {
		s.allInFlight--
		s.full.IsLoading = s.allInFlight > 0
		if err != nil {
			s.full.LastError = err
			return
		}
		s.full.Items = append([]models.Resource{}, items...)
		s.full.Loaded = true
		s.full.LastError = nil
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "fetch_all", err)
		return fmt.Errorf("fetch all %s: %w", s.entity.Name, err)
	}
	return nil
}

// Create adds a record and inserts the returned resource at the entity's
// conventional end of the cached page. Totals are left untouched.
func (s *Slice) Create(ctx context.Context, payload models.MutationPayload) (models.Resource, error) {
	s.beginTask()
	created, err := s.gateway.Create(ctx, s.entity, payload)

	s.endTask(err, func() {
		s.list.Items = insertCreated(s.list.Items, created, s.entity.PrependOnCreate)
		if s.full.Loaded {
			s.full.Items = insertCreated(s.full.Items, created, s.entity.PrependOnCreate)
		}
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "create", err)
		return models.Resource{}, fmt.Errorf("create %s: %w", s.entity.Name, err)
	}
	s.notifier.Success(s.entity.Name, "create", s.entity.Name+" created")
	return created, nil
}

// Update replaces the matching cached record with the backend's version.
// A record missing from the cache is not inserted.
func (s *Slice) Update(ctx context.Context, id string, payload models.MutationPayload) (models.Resource, error) {
	s.beginTask()
	updated, err := s.gateway.Update(ctx, s.entity, id, payload)

	s.endTask(err, func() {
		s.replaceLocked(updated)
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "update", err)
		return models.Resource{}, fmt.Errorf("update %s %s: %w", s.entity.Name, id, err)
	}
	s.notifier.Success(s.entity.Name, "update", s.entity.Name+" updated")
	return updated, nil
}

// Delete removes the record from the cache once the backend confirms.
// TotalItems and TotalPages keep their values until the next fetch.
func (s *Slice) Delete(ctx context.Context, id string) error {
	s.beginTask()
	err := s.gateway.DeleteResource(ctx, s.entity, id)

	s.endTask(err, func() {
		s.list.Items = removeByID(s.list.Items, id)
		s.full.Items = removeByID(s.full.Items, id)
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "delete", err)
		return fmt.Errorf("delete %s %s: %w", s.entity.Name, id, err)
	}
	s.notifier.Success(s.entity.Name, "delete", s.entity.Name+" deleted")
	return nil
}

// ToggleStatus flips the status flag server-side and replaces the record
func (s *Slice) ToggleStatus(ctx context.Context, id string) (models.Resource, error) {
	s.beginTask()
	toggled, err := s.gateway.ToggleStatus(ctx, s.entity, id)

	s.endTask(err, func() {
		s.replaceLocked(toggled)
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "toggle_status", err)
		return models.Resource{}, fmt.Errorf("toggle %s %s: %w", s.entity.Name, id, err)
	}
	s.notifier.Success(s.entity.Name, "toggle_status", s.entity.Name+" status updated")
	return toggled, nil
}

// Reorder re-sorts the cached records immediately, then persists the batch.
// A failed save is reported but the local order is kept.
func (s *Slice) Reorder(ctx context.Context, batch models.ReorderBatch) error {
	s.mutate(func() {
		s.taskInFlight++
		s.list.Items = ApplyOrder(s.list.Items, batch)
		s.full.Items = ApplyOrder(s.full.Items, batch)
	})

	returned, err := s.gateway.UpdateOrder(ctx, s.entity, batch)

	s.endTask(err, func() {
		for _, res := range returned {
			s.replaceLocked(res)
		}
	})

	if err != nil {
		s.notifier.Error(s.entity.Name, "reorder", err)
		return fmt.Errorf("reorder %s: %w", s.entity.Name, err)
	}
	s.notifier.Success(s.entity.Name, "reorder", s.entity.Name+" order saved")
	return nil
}

func (s *Slice) beginTask() {
	s.mutate(func() { s.taskInFlight++ })
}

// endTask records the outcome of a mutation; onSuccess runs under the lock
func (s *Slice) endTask(err error, onSuccess func()) {
	s.mutate(func() {
		s.taskInFlight--
		if err != nil {
			s.taskError = err
			return
		}
		s.taskError = nil
		onSuccess()
	})
}

// replaceLocked swaps the record with the same id in both read models
func (s *Slice) replaceLocked(res models.Resource) {
	s.list.Items = replaceByID(s.list.Items, res)
	s.full.Items = replaceByID(s.full.Items, res)
}

// mutate applies fn under the lock and publishes the new state
func (s *Slice) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.list.IsLoading = s.fetchInFlight > 0 || s.taskInFlight > 0
	snapshot := s.snapshotLocked()

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Unlock()

	s.publish(snapshot)
}

func (s *Slice) snapshotLocked() State {
	list := s.list
	list.Items = append([]models.Resource{}, s.list.Items...)
	full := s.full
	full.Items = append([]models.Resource{}, s.full.Items...)

	statusField := s.entity.StatusField
	if statusField == "" {
		statusField = "isActive"
	}

	return State{
		Entity:      s.entity.Name,
		StatusField: statusField,
		List:        list,
		Full:        full,
		TaskLoading: s.taskInFlight > 0,
		TaskError:   s.taskError,
	}
}

func (s *Slice) publish(state State) {
	s.subMu.RLock()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}

// insertCreated puts a new record at the entity's conventional end
func insertCreated(items []models.Resource, created models.Resource, prepend bool) []models.Resource {
	if prepend {
		return append([]models.Resource{created}, items...)
	}
	return append(items, created)
}

func replaceByID(items []models.Resource, res models.Resource) []models.Resource {
	out := make([]models.Resource, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == res.ID {
			out[i] = res
			return out
		}
	}
	return out
}

func removeByID(items []models.Resource, id string) []models.Resource {
	out := make([]models.Resource, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// ApplyOrder sorts items by the positions in batch and stamps the "order"
// field. Records absent from the batch keep their relative order at the end.
func ApplyOrder(items []models.Resource, batch models.ReorderBatch) []models.Resource {
	positions := make(map[string]int, len(batch))
	for _, item := range batch {
		positions[item.ResourceID] = item.Order
	}

	out := make([]models.Resource, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		pi, iOK := positions[out[i].ID]
		pj, jOK := positions[out[j].ID]
		switch {
		case iOK && jOK:
			return pi < pj
		case iOK:
			return true
		default:
			return false
		}
	})

	for i := range out {
		if order, ok := positions[out[i].ID]; ok {
			stamped := out[i].Clone()
			stamped.Fields["order"] = order
			out[i] = stamped
		}
	}
	return out
}
