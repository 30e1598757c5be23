package slice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-memory backend; hooks override single calls
type fakeGateway struct {
	mu      sync.Mutex
	records []models.Resource
	nextID  int
	calls   int

	listPage func(ctx context.Context, q client.ListQuery) (*models.Page, error)
	failNext error
}

func newFakeGateway(n int) *fakeGateway {
	g := &fakeGateway{}
	for i := 0; i < n; i++ {
		g.records = append(g.records, resource(fmt.Sprintf("r%d", i+1), true))
	}
	g.nextID = n
	return g
}

func resource(id string, active bool) models.Resource {
	return models.Resource{ID: id, Fields: map[string]any{"_id": id, "name": "record " + id, "isActive": active}}
}

func (g *fakeGateway) takeFailure() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	err := g.failNext
	g.failNext = nil
	return err
}

func (g *fakeGateway) ListPage(ctx context.Context, e entities.Entity, q client.ListQuery) (*models.Page, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	if g.listPage != nil {
		return g.listPage(ctx, q)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	total := len(g.records)
	start := (q.Page - 1) * q.Items
	end := start + q.Items
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return &models.Page{
		Items: append([]models.Resource{}, g.records[start:end]...),
		Pagination: models.Pagination{
			CurrentPage: q.Page,
			TotalPages:  (total + q.Items - 1) / q.Items,
			TotalItems:  total,
		},
	}, nil
}

func (g *fakeGateway) ListAll(ctx context.Context, e entities.Entity) ([]models.Resource, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Resource{}, g.records...), nil
}

func (g *fakeGateway) Create(ctx context.Context, e entities.Entity, payload models.MutationPayload) (models.Resource, error) {
	if err := g.takeFailure(); err != nil {
		return models.Resource{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	res := resource(fmt.Sprintf("r%d", g.nextID), true)
	for k, v := range payload.Fields {
		res.Fields[k] = v
	}
	g.records = append(g.records, res)
	return res, nil
}

func (g *fakeGateway) Update(ctx context.Context, e entities.Entity, id string, payload models.MutationPayload) (models.Resource, error) {
	if err := g.takeFailure(); err != nil {
		return models.Resource{}, err
	}
	res := resource(id, true)
	for k, v := range payload.Fields {
		res.Fields[k] = v
	}
	return res, nil
}

func (g *fakeGateway) DeleteResource(ctx context.Context, e entities.Entity, id string) error {
	return g.takeFailure()
}

func (g *fakeGateway) ToggleStatus(ctx context.Context, e entities.Entity, id string) (models.Resource, error) {
	if err := g.takeFailure(); err != nil {
		return models.Resource{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, rec := range g.records {
		if rec.ID == id {
			active, _ := rec.Bool("isActive")
			g.records[i] = resource(id, !active)
			return g.records[i], nil
		}
	}
	return resource(id, false), nil
}

func (g *fakeGateway) UpdateOrder(ctx context.Context, e entities.Entity, batch models.ReorderBatch) ([]models.Resource, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	return nil, nil
}

func ids(items []models.Resource) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func productEntity() entities.Entity {
	e, _ := entities.DefaultRegistry().Lookup("product")
	return e
}

func tagEntity() entities.Entity {
	e, _ := entities.DefaultRegistry().Lookup("tag")
	return e
}

func TestFetchPage_PopulatesState(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(25)
	s := New(productEntity(), gateway)

	// Act
	err := s.FetchPage(context.Background(), 1, 10, "")

	// Assert
	require.NoError(t, err)
	state := s.State()
	assert.Len(t, state.List.Items, 10)
	assert.Equal(t, 1, state.List.Page)
	assert.Equal(t, 10, state.List.PageSize)
	assert.Equal(t, 3, state.List.TotalPages)
	assert.Equal(t, 25, state.List.TotalItems)
	assert.False(t, state.List.IsLoading)
	assert.NoError(t, state.List.LastError)
}

func TestFetchPage_RejectsInvalidArguments(t *testing.T) {
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)

	err := s.FetchPage(context.Background(), 0, 10, "")
	assert.ErrorIs(t, err, ErrInvalidPage)

	err = s.FetchPage(context.Background(), 1, 0, "")
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	assert.Equal(t, 0, gateway.calls, "no request should be sent for invalid arguments")
}

func TestFetchPage_TruncatesOversizedPage(t *testing.T) {
	gateway := newFakeGateway(0)
	gateway.listPage = func(ctx context.Context, q client.ListQuery) (*models.Page, error) {
		return &models.Page{
			Items:      []models.Resource{resource("a", true), resource("b", true), resource("c", true)},
			Pagination: models.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: 3},
		}, nil
	}
	s := New(productEntity(), gateway)

	require.NoError(t, s.FetchPage(context.Background(), 1, 2, ""))

	assert.Len(t, s.State().List.Items, 2)
}

func TestFetchPage_FailureKeepsStaleItems(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(5)
	feed := notify.NewFeed(10, nil)
	s := New(productEntity(), gateway, WithNotifier(feed))
	require.NoError(t, s.FetchPage(context.Background(), 1, 5, ""))
	gateway.failNext = &client.HTTPError{Status: 500, Message: "boom"}

	// Act
	err := s.FetchPage(context.Background(), 2, 5, "")

	// Assert
	require.Error(t, err)
	state := s.State()
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, ids(state.List.Items))
	assert.Equal(t, 1, state.List.Page, "page stays at the last successful fetch")
	assert.Error(t, state.List.LastError)
	assert.False(t, state.List.IsLoading)

	toasts := feed.Recent()
	require.Len(t, toasts, 1)
	assert.Equal(t, notify.LevelError, toasts[0].Level)
	assert.Equal(t, "fetch", toasts[0].Operation)
}

func TestFetchPage_SuccessClearsLastError(t *testing.T) {
	gateway := newFakeGateway(5)
	s := New(productEntity(), gateway)
	gateway.failNext = errors.New("offline")
	require.Error(t, s.FetchPage(context.Background(), 1, 5, ""))

	require.NoError(t, s.FetchPage(context.Background(), 1, 5, ""))

	assert.NoError(t, s.State().List.LastError)
}

// pageRace makes page 1 resolve after page 2
func pageRace(gateway *fakeGateway) (release1 chan struct{}, started chan int) {
	release1 = make(chan struct{})
	started = make(chan int, 2)
	gateway.listPage = func(ctx context.Context, q client.ListQuery) (*models.Page, error) {
		started <- q.Page
		if q.Page == 1 {
			<-release1
		}
		id := fmt.Sprintf("page%d", q.Page)
		return &models.Page{
			Items:      []models.Resource{resource(id, true)},
			Pagination: models.Pagination{CurrentPage: q.Page, TotalPages: 2, TotalItems: 2},
		}, nil
	}
	return release1, started
}

func TestFetchPage_LastResponseWins(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(0)
	release1, started := pageRace(gateway)
	s := New(productEntity(), gateway)
	ctx := context.Background()

	// Act: page 2 is requested after page 1 but page 1 resolves last
	done := make(chan struct{})
	go func() {
		_ = s.FetchPage(ctx, 1, 1, "")
		close(done)
	}()
	require.Equal(t, 1, <-started)

	require.NoError(t, s.FetchPage(ctx, 2, 1, ""))
	assert.Equal(t, 2, s.State().List.Page)
	assert.True(t, s.State().List.IsLoading, "page 1 is still in flight")

	close(release1)
	<-done

	// Assert
	state := s.State()
	assert.Equal(t, 1, state.List.Page)
	assert.Equal(t, []string{"page1"}, ids(state.List.Items))
	assert.False(t, state.List.IsLoading)
}

func TestFetchPage_StaleResponseGuard(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(0)
	release1, started := pageRace(gateway)
	s := New(productEntity(), gateway, WithStaleResponseGuard())
	ctx := context.Background()

	// Act
	done := make(chan struct{})
	go func() {
		_ = s.FetchPage(ctx, 1, 1, "")
		close(done)
	}()
	require.Equal(t, 1, <-started)
	require.NoError(t, s.FetchPage(ctx, 2, 1, ""))
	close(release1)
	<-done

	// Assert
	state := s.State()
	assert.Equal(t, 2, state.List.Page)
	assert.Equal(t, []string{"page2"}, ids(state.List.Items))
	assert.False(t, state.List.IsLoading)
}

func TestCreate_PrependsAndKeepsTotals(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	// Act
	created, err := s.Create(context.Background(), models.MutationPayload{Fields: map[string]any{"name": "Hoodie"}})

	// Assert
	require.NoError(t, err)
	state := s.State()
	assert.Equal(t, created.ID, state.List.Items[0].ID)
	assert.Len(t, state.List.Items, 4)
	assert.Equal(t, 3, state.List.TotalItems, "create does not touch totals")
	assert.False(t, state.TaskLoading)
	assert.NoError(t, state.TaskError)
}

func TestCreate_AppendsForNonPrependingEntity(t *testing.T) {
	gateway := newFakeGateway(2)
	s := New(tagEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	created, err := s.Create(context.Background(), models.MutationPayload{Fields: map[string]any{"name": "summer"}})

	require.NoError(t, err)
	items := s.State().List.Items
	assert.Equal(t, created.ID, items[len(items)-1].ID)
}

func TestCreate_FailureSetsTaskError(t *testing.T) {
	gateway := newFakeGateway(2)
	feed := notify.NewFeed(10, nil)
	s := New(productEntity(), gateway, WithNotifier(feed))
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))
	gateway.failNext = &client.HTTPError{Status: 400, Message: "name is required"}

	_, err := s.Create(context.Background(), models.MutationPayload{})

	require.Error(t, err)
	state := s.State()
	assert.Len(t, state.List.Items, 2)
	assert.EqualError(t, state.TaskError, "request failed with status 400: name is required")
	assert.Equal(t, notify.LevelError, feed.Recent()[0].Level)
}

func TestUpdate_ReplacesByID(t *testing.T) {
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	_, err := s.Update(context.Background(), "r2", models.MutationPayload{Fields: map[string]any{"name": "renamed"}})

	require.NoError(t, err)
	items := s.State().List.Items
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(items))
	assert.Equal(t, "renamed", items[1].String("name"))
}

func TestUpdate_UnknownIDIsDropped(t *testing.T) {
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))
	before := s.State().List.Items

	_, err := s.Update(context.Background(), "r99", models.MutationPayload{Fields: map[string]any{"name": "ghost"}})

	require.NoError(t, err)
	assert.Equal(t, before, s.State().List.Items)
}

func TestDelete_RemovesAndKeepsTotals(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	// Act
	err := s.Delete(context.Background(), "r2")

	// Assert
	require.NoError(t, err)
	state := s.State()
	assert.Equal(t, []string{"r1", "r3"}, ids(state.List.Items))
	assert.Equal(t, 3, state.List.TotalItems)
	assert.Equal(t, 1, state.List.TotalPages)
}

func TestDelete_FailureKeepsItem(t *testing.T) {
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))
	gateway.failNext = &client.HTTPError{Status: 404, Message: "not found"}

	err := s.Delete(context.Background(), "r2")

	require.Error(t, err)
	assert.Equal(t, 404, client.StatusCode(err))
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(s.State().List.Items))
}

func TestCreateThenDelete_LeavesNoTrace(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(3)
	s := New(productEntity(), gateway)
	ctx := context.Background()
	require.NoError(t, s.FetchPage(ctx, 1, 10, ""))
	require.NoError(t, s.FetchAll(ctx))
	before := s.State()

	// Act
	created, err := s.Create(ctx, models.MutationPayload{Fields: map[string]any{"name": "Tee"}})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, created.ID))

	// Assert
	state := s.State()
	assert.NotContains(t, ids(state.List.Items), created.ID)
	assert.NotContains(t, ids(state.Full.Items), created.ID)
	assert.Equal(t, ids(before.List.Items), ids(state.List.Items))
	assert.Equal(t, before.List.TotalItems, state.List.TotalItems)
}

func TestCreate_FullListFollowsEntityConvention(t *testing.T) {
	tests := []struct {
		name   string
		entity entities.Entity
		first  bool
	}{
		{"prepending entity", productEntity(), true},
		{"appending entity", tagEntity(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			gateway := newFakeGateway(3)
			s := New(tt.entity, gateway)
			require.NoError(t, s.FetchAll(context.Background()))

			// Act
			created, err := s.Create(context.Background(), models.MutationPayload{})

			// Assert
			require.NoError(t, err)
			full := s.State().Full.Items
			require.Len(t, full, 4)
			if tt.first {
				assert.Equal(t, created.ID, full[0].ID)
			} else {
				assert.Equal(t, created.ID, full[3].ID)
			}
		})
	}
}

func TestMutation_MarksListLoading(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(2)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	var seen []State
	s.Subscribe(func(st State) { seen = append(seen, st) })

	// Act
	require.NoError(t, s.Delete(context.Background(), "r1"))

	// Assert
	require.Len(t, seen, 2)
	assert.True(t, seen[0].List.IsLoading, "list is loading while the delete is in flight")
	assert.True(t, seen[0].TaskLoading)
	assert.False(t, seen[1].List.IsLoading)
	assert.False(t, seen[1].TaskLoading)
}

func TestSubscribe_LastSnapshotMatchesState(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(0)
	s := New(tagEntity(), gateway)

	var mu sync.Mutex
	var last State
	s.Subscribe(func(st State) {
		mu.Lock()
		last = st
		mu.Unlock()
	})

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create(context.Background(), models.MutationPayload{})
		}()
	}
	wg.Wait()

	// Assert
	mu.Lock()
	defer mu.Unlock()
	state := s.State()
	assert.Len(t, state.List.Items, 40)
	assert.Equal(t, ids(state.List.Items), ids(last.List.Items))
	assert.False(t, last.TaskLoading)
}

func TestState_StatusField(t *testing.T) {
	e := tagEntity()
	assert.Equal(t, "isActive", New(e, newFakeGateway(0)).State().StatusField)

	e.StatusField = "published"
	assert.Equal(t, "published", New(e, newFakeGateway(0)).State().StatusField)
}

func TestToggleStatus_TwiceRestoresFlag(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(2)
	s := New(productEntity(), gateway)
	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	// Act
	_, err := s.ToggleStatus(context.Background(), "r1")
	require.NoError(t, err)
	afterFirst, _ := s.State().List.Items[0].Bool("isActive")

	_, err = s.ToggleStatus(context.Background(), "r1")
	require.NoError(t, err)
	afterSecond, _ := s.State().List.Items[0].Bool("isActive")

	// Assert
	assert.False(t, afterFirst)
	assert.True(t, afterSecond)
}

func TestReorder_OptimisticWithoutRollback(t *testing.T) {
	// Arrange
	gateway := newFakeGateway(3)
	feed := notify.NewFeed(10, nil)
	s := New(productEntity(), gateway, WithNotifier(feed))
	require.NoError(t, s.FetchAll(context.Background()))
	gateway.failNext = &client.HTTPError{Status: 500, Message: "write failed"}

	batch := models.ReorderBatch{
		{ResourceID: "r3", Order: 0},
		{ResourceID: "r1", Order: 1},
		{ResourceID: "r2", Order: 2},
	}

	// Act
	err := s.Reorder(context.Background(), batch)

	// Assert
	require.Error(t, err)
	state := s.State()
	assert.Equal(t, []string{"r3", "r1", "r2"}, ids(state.Full.Items), "local order is kept after a failed save")
	assert.Equal(t, 0, state.Full.Items[0].Fields["order"])
	assert.Equal(t, "reorder", feed.Recent()[0].Operation)
}

func TestFetchAll_SeparateFromPage(t *testing.T) {
	gateway := newFakeGateway(12)
	s := New(productEntity(), gateway)

	require.NoError(t, s.FetchPage(context.Background(), 1, 5, ""))
	require.NoError(t, s.FetchAll(context.Background()))

	state := s.State()
	assert.Len(t, state.List.Items, 5)
	assert.Len(t, state.Full.Items, 12)
	assert.True(t, state.Full.Loaded)
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	gateway := newFakeGateway(2)
	s := New(productEntity(), gateway)

	var mu sync.Mutex
	var seen []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	mu.Lock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].List.IsLoading)
	assert.False(t, seen[1].List.IsLoading)
	assert.Len(t, seen[1].List.Items, 2)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, s.Delete(context.Background(), "r1"))

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestApplyOrder_UnlistedItemsGoLast(t *testing.T) {
	items := []models.Resource{resource("a", true), resource("b", true), resource("c", true)}

	out := ApplyOrder(items, models.ReorderBatch{{ResourceID: "c", Order: 0}, {ResourceID: "a", Order: 1}})

	assert.Equal(t, []string{"c", "a", "b"}, ids(out))
	_, stamped := items[0].Fields["order"]
	assert.False(t, stamped, "input records are not mutated")
}
