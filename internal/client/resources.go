package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
)

// ListQuery selects one page of an entity list
type ListQuery struct {
	Page   int
	Items  int
	Filter string
}

// envelope is the outer shape of every backend response
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ListPage fetches one page of e
func (c *AdminClient) ListPage(ctx context.Context, e entities.Entity, q ListQuery) (*models.Page, error) {
	ctx = WithOperation(ctx, e.Name, "list_page")

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("items", strconv.Itoa(q.Items))
	if q.Filter != "" {
		key := e.FilterParam
		if key == "" {
			key = "filter"
		}
		params.Set(key, q.Filter)
	}

	body, err := c.Get(ctx, e.ListPath, params)
	if err != nil {
		return nil, err
	}
	return decodePage(e, body)
}

// ListAll fetches the complete unpaginated set of e
func (c *AdminClient) ListAll(ctx context.Context, e entities.Entity) ([]models.Resource, error) {
	ctx = WithOperation(ctx, e.Name, "list_all")

	body, err := c.Get(ctx, e.AllPath, nil)
	if err != nil {
		return nil, err
	}
	page, err := decodePage(e, body)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Create adds a new record of e
func (c *AdminClient) Create(ctx context.Context, e entities.Entity, payload models.MutationPayload) (models.Resource, error) {
	ctx = WithOperation(ctx, e.Name, "create")

	body, err := c.Post(ctx, e.AddPath, payload)
	if err != nil {
		return models.Resource{}, err
	}
	return decodeItem(e, body)
}

// Update replaces the fields of record id
func (c *AdminClient) Update(ctx context.Context, e entities.Entity, id string, payload models.MutationPayload) (models.Resource, error) {
	ctx = WithOperation(ctx, e.Name, "update")

	body, err := c.Put(ctx, e.Path(e.UpdatePath, id), payload)
	if err != nil {
		return models.Resource{}, err
	}
	return decodeItem(e, body)
}

// DeleteResource removes record id; no response body is required
func (c *AdminClient) DeleteResource(ctx context.Context, e entities.Entity, id string) error {
	ctx = WithOperation(ctx, e.Name, "delete")

	_, err := c.Delete(ctx, e.Path(e.DeletePath, id))
	return err
}

// ToggleStatus flips the status flag of record id
func (c *AdminClient) ToggleStatus(ctx context.Context, e entities.Entity, id string) (models.Resource, error) {
	if e.TogglePath == "" {
		return models.Resource{}, fmt.Errorf("entity %s does not support status toggling", e.Name)
	}
	ctx = WithOperation(ctx, e.Name, "toggle_status")

	body, err := c.Patch(ctx, e.Path(e.TogglePath, id), nil)
	if err != nil {
		return models.Resource{}, err
	}
	return decodeItem(e, body)
}

// UpdateOrder persists a full ReorderBatch. The returned list is nil when the
// backend only confirms.
func (c *AdminClient) UpdateOrder(ctx context.Context, e entities.Entity, batch models.ReorderBatch) ([]models.Resource, error) {
	if e.OrderPath == "" {
		return nil, fmt.Errorf("entity %s does not support reordering", e.Name)
	}
	ctx = WithOperation(ctx, e.Name, "update_order")

	body, err := c.Put(ctx, e.OrderPath, map[string]any{e.OrderKey: batch})
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	page, err := decodePage(e, body)
	if err != nil {
		// a confirmation without a list is fine
		return nil, nil
	}
	return page.Items, nil
}

// Export downloads a binary export
func (c *AdminClient) Export(ctx context.Context, x entities.Export) (*models.Download, error) {
	ctx = WithOperation(ctx, "export", x.Kind)
	return c.Download(ctx, x.Path, x.DefaultFilename)
}

// decodePage reads {data:{<plural>:[], pagination:{...}}}; a bare array under
// data is accepted as an unpaginated list
func decodePage(e entities.Entity, body []byte) (*models.Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("response for %s has no data", e.Name)
	}

	var items []models.Resource
	if err := json.Unmarshal(env.Data, &items); err == nil {
		return &models.Page{
			Items:      items,
			Pagination: models.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: len(items)},
		}, nil
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	rawItems, ok := data[e.Plural]
	if !ok {
		return nil, fmt.Errorf("response for %s has no %q list", e.Name, e.Plural)
	}
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", e.Plural, err)
	}
	if items == nil {
		items = []models.Resource{}
	}

	page := &models.Page{
		Items: items,
		Pagination: models.Pagination{
			CurrentPage: 1,
			TotalPages:  1,
			TotalItems:  len(items),
		},
	}

	if rawPagination, ok := data["pagination"]; ok {
		var p map[string]any
		if err := json.Unmarshal(rawPagination, &p); err != nil {
			return nil, fmt.Errorf("failed to decode pagination: %w", err)
		}
		page.Pagination.CurrentPage = intField(p, "currentPage")
		page.Pagination.TotalPages = intField(p, "totalPages")
		for _, key := range []string{e.TotalKey, "totalItems", "total"} {
			if _, ok := p[key]; ok {
				page.Pagination.TotalItems = intField(p, key)
				break
			}
		}
	}

	return page, nil
}

// intField reads a numeric pagination field sent either as number or string
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// decodeItem reads {data:{<item>:{...}}} or {data:{...}}
func decodeItem(e entities.Entity, body []byte) (models.Resource, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Resource{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return models.Resource{}, fmt.Errorf("response for %s has no data", e.Name)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &wrapped); err != nil {
		return models.Resource{}, fmt.Errorf("failed to decode data: %w", err)
	}

	raw := json.RawMessage(env.Data)
	if inner, ok := wrapped[e.ItemKey]; ok && len(inner) > 0 && inner[0] == '{' {
		raw = inner
	}

	var res models.Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.Resource{}, err
	}
	if res.ID == "" {
		return models.Resource{}, fmt.Errorf("response for %s carries no id", e.Name)
	}
	return res, nil
}
