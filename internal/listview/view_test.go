package listview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/slice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedGateway serves total records of one entity and counts list calls
type pagedGateway struct {
	mu      sync.Mutex
	total   int
	queries []client.ListQuery
	fail    error
}

func (g *pagedGateway) ListPage(ctx context.Context, e entities.Entity, q client.ListQuery) (*models.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, q)
	if g.fail != nil {
		return nil, g.fail
	}

	var items []models.Resource
	for i := (q.Page - 1) * q.Items; i < q.Page*q.Items && i < g.total; i++ {
		id := fmt.Sprintf("p%d", i+1)
		items = append(items, models.Resource{ID: id, Fields: map[string]any{
			"_id":      id,
			"name":     "Product " + id,
			"price":    json.Number("1200"),
			"isActive": i%2 == 0,
		}})
	}
	return &models.Page{
		Items:      items,
		Pagination: models.Pagination{CurrentPage: q.Page, TotalPages: (g.total + q.Items - 1) / q.Items, TotalItems: g.total},
	}, nil
}

func (g *pagedGateway) ListAll(ctx context.Context, e entities.Entity) ([]models.Resource, error) {
	return nil, nil
}

func (g *pagedGateway) Create(ctx context.Context, e entities.Entity, p models.MutationPayload) (models.Resource, error) {
	return models.Resource{ID: "created", Fields: p.Fields}, nil
}

func (g *pagedGateway) Update(ctx context.Context, e entities.Entity, id string, p models.MutationPayload) (models.Resource, error) {
	return models.Resource{ID: id, Fields: p.Fields}, nil
}

func (g *pagedGateway) DeleteResource(ctx context.Context, e entities.Entity, id string) error {
	return nil
}

func (g *pagedGateway) ToggleStatus(ctx context.Context, e entities.Entity, id string) (models.Resource, error) {
	return models.Resource{ID: id, Fields: map[string]any{}}, nil
}

func (g *pagedGateway) UpdateOrder(ctx context.Context, e entities.Entity, b models.ReorderBatch) ([]models.Resource, error) {
	return nil, nil
}

func (g *pagedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

func newProductView(t *testing.T, gateway *pagedGateway, pageSize int) (*View, *slice.Slice) {
	t.Helper()
	product, err := entities.DefaultRegistry().Lookup("product")
	require.NoError(t, err)
	s := slice.New(product, gateway)
	return New(s, pageSize), s
}

func TestParsePageRoute(t *testing.T) {
	tests := map[string]int{
		"3":   3,
		" 2 ": 2,
		"":    1,
		"0":   1,
		"-4":  1,
		"abc": 1,
	}
	for raw, expected := range tests {
		assert.Equal(t, expected, ParsePageRoute(raw), "input %q", raw)
	}
}

func TestView_MountAndPaginate(t *testing.T) {
	// Arrange
	gateway := &pagedGateway{total: 25}
	view, _ := newProductView(t, gateway, 10)

	// Act
	require.NoError(t, view.Mount(context.Background()))
	first := view.Render()
	require.NoError(t, view.SetPage(context.Background(), 3))
	last := view.Render()

	// Assert
	assert.Len(t, first.Rows, 10)
	assert.Equal(t, "Page 1 of 3", first.PageLabel)
	assert.False(t, first.HasPrev)
	assert.True(t, first.HasNext)

	assert.Len(t, last.Rows, 5)
	assert.Equal(t, 3, last.Page)
	assert.True(t, last.HasPrev)
	assert.False(t, last.HasNext)
}

func TestView_UnchangedTupleDoesNotRefetch(t *testing.T) {
	gateway := &pagedGateway{total: 5}
	view, _ := newProductView(t, gateway, 10)
	ctx := context.Background()

	require.NoError(t, view.Mount(ctx))
	require.NoError(t, view.Apply(ctx, Query{Page: 1, PageSize: 10}))
	require.NoError(t, view.SetPage(ctx, 1))

	assert.Equal(t, 1, gateway.calls())

	require.NoError(t, view.Apply(ctx, Query{Page: 1, PageSize: 20}))
	assert.Equal(t, 2, gateway.calls())
}

func TestView_ReloadAlwaysFetches(t *testing.T) {
	gateway := &pagedGateway{total: 5}
	view, _ := newProductView(t, gateway, 10)
	ctx := context.Background()
	require.NoError(t, view.Apply(ctx, Query{Page: 1}))

	require.NoError(t, view.Reload(ctx, Query{Page: 1}))
	require.NoError(t, view.Refresh(ctx))

	assert.Equal(t, 3, gateway.calls())
}

func TestView_FilterResetsPage(t *testing.T) {
	gateway := &pagedGateway{total: 30}
	view, _ := newProductView(t, gateway, 10)
	ctx := context.Background()
	require.NoError(t, view.Mount(ctx))
	require.NoError(t, view.SetPage(ctx, 2))

	require.NoError(t, view.SetFilter(ctx, "hoodies"))

	last := gateway.queries[len(gateway.queries)-1]
	assert.Equal(t, client.ListQuery{Page: 1, Items: 10, Filter: "hoodies"}, last)
	assert.Equal(t, Query{Page: 1, PageSize: 10, Filter: "hoodies"}, view.Query())
}

func TestRender_EmptyState(t *testing.T) {
	gateway := &pagedGateway{total: 0}
	view, _ := newProductView(t, gateway, 10)
	require.NoError(t, view.Mount(context.Background()))

	model := view.Render()

	assert.True(t, model.Empty)
	assert.Equal(t, EmptyMessage, model.EmptyText)
	assert.Empty(t, model.Rows)
}

func TestRender_ErrorKeepsRows(t *testing.T) {
	gateway := &pagedGateway{total: 3}
	view, _ := newProductView(t, gateway, 10)
	require.NoError(t, view.Mount(context.Background()))
	gateway.fail = errors.New("backend down")

	require.Error(t, view.Refresh(context.Background()))
	model := view.Render()

	assert.Len(t, model.Rows, 3)
	assert.False(t, model.Empty)
	assert.Contains(t, model.Error, "backend down")
}

func TestRender_CellsAndColumns(t *testing.T) {
	gateway := &pagedGateway{total: 1}
	view, _ := newProductView(t, gateway, 10)
	require.NoError(t, view.Mount(context.Background()))

	model := view.Render()

	assert.Equal(t, []string{"isActive", "name", "price"}, model.Columns)
	require.Len(t, model.Rows, 1)
	assert.Equal(t, []string{"yes", "Product p1", "1200"}, model.Rows[0].Cells)
	require.NotNil(t, model.Rows[0].Active)
	assert.True(t, *model.Rows[0].Active)
}

func TestRender_UsesEntityStatusField(t *testing.T) {
	// Arrange
	state := slice.State{
		Entity:      "lookbook",
		StatusField: "published",
		List: slice.ResourceList{
			Items: []models.Resource{{ID: "l1", Fields: map[string]any{"published": false, "isActive": true}}},
			Page:  1,
		},
	}

	// Act
	model := Render(state, "published")

	// Assert
	require.Len(t, model.Rows, 1)
	require.NotNil(t, model.Rows[0].Active)
	assert.False(t, *model.Rows[0].Active)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, ""},
		{"false", false, "no"},
		{"list", []any{"S", "M", json.Number("42")}, "S, M, 42"},
		{"named object", map[string]any{"name": "Outerwear", "_id": "c1"}, "Outerwear"},
		{"multiline", "line one\nline  two", "line one line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatCell(tt.value))
		})
	}

	long := FormatCell("abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz")
	assert.Len(t, []rune(long), maxCellWidth)
}

func TestDialog_CreateVersusEdit(t *testing.T) {
	// Arrange
	gateway := &pagedGateway{total: 2}
	view, s := newProductView(t, gateway, 10)
	require.NoError(t, view.Mount(context.Background()))
	selected := s.State().List.Items[1]

	// Act
	createMode := NewDialog(nil)
	editMode := NewDialog(&selected)

	// Assert
	assert.IsType(t, CreateDialog{}, createMode)
	edit, ok := editMode.(EditDialog)
	require.True(t, ok)
	assert.Equal(t, "p2", edit.ID)
	assert.Equal(t, "Product p2", edit.Fields["name"])

	edit.Fields["name"] = "changed in form"
	assert.Equal(t, "Product p2", selected.String("name"), "the form edits a copy")
}

func TestDialog_SubmitDispatches(t *testing.T) {
	gateway := &pagedGateway{total: 2}
	view, s := newProductView(t, gateway, 10)
	require.NoError(t, view.Mount(context.Background()))
	ctx := context.Background()

	created, err := Submit(ctx, s, NewDialog(nil), models.MutationPayload{Fields: map[string]any{"name": "New"}})
	require.NoError(t, err)
	assert.Equal(t, "created", created.ID)

	selected := s.State().List.Items[1]
	updated, err := Submit(ctx, s, NewDialog(&selected), models.MutationPayload{Fields: map[string]any{"name": "Renamed"}})
	require.NoError(t, err)
	assert.Equal(t, selected.ID, updated.ID)

	items := s.State().List.Items
	assert.Equal(t, "created", items[0].ID, "products are prepended")
	assert.Len(t, items, 3)
}
