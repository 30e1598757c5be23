package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"drip-admin-console/internal/listview"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/slice"
	"drip-admin-console/internal/store"

	"github.com/gorilla/mux"
)

const maxUploadMemory = 32 << 20

// ConsoleHandler serves list views and dialogs for every entity
type ConsoleHandler struct {
	store    *store.Store
	pageSize int

	mu    sync.Mutex
	views map[string]*listview.View
}

// listRequest holds the list view query parameters
type listRequest struct {
	Page   int `validate:"min=1"`
	Items  int `validate:"min=1,max=500"`
	Filter string
}

// NewConsoleHandler creates a console handler
func NewConsoleHandler(st *store.Store, defaultPageSize int) *ConsoleHandler {
	return &ConsoleHandler{
		store:    st,
		pageSize: defaultPageSize,
		views:    make(map[string]*listview.View),
	}
}

// view returns the list view of entity, creating it on first use
func (h *ConsoleHandler) view(entity string) (*listview.View, *slice.Slice, error) {
	sl, err := h.store.Slice(entity)
	if err != nil {
		return nil, nil, err
	}
	name := sl.Entity().Name

	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.views[name]
	if !ok {
		v = listview.New(sl, h.pageSize)
		h.views[name] = v
	}
	return v, sl, nil
}

// ListEntities handles GET /v1/entities
func (h *ConsoleHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	registry := h.store.Registry()
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entities": registry.All(),
		"exports":  registry.Exports(),
	})
}

// List handles GET /v1/{entity} and GET /v1/{entity}/page/{page}
func (h *ConsoleHandler) List(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, _, err := h.view(vars["entity"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	req, details := h.parseListRequest(r, view.Query())
	if details != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid list parameters", details)
		return
	}

	query := listview.Query{Page: req.Page, PageSize: req.Items, Filter: req.Filter}
	if r.URL.Query().Get("refresh") == "true" {
		err = view.Reload(r.Context(), query)
	} else {
		err = view.Apply(r.Context(), query)
	}

	// A failed fetch still renders the previous rows; only an expired
	// session or a bad query is turned into an error status.
	if err != nil {
		if status, _ := classifyError(err); status == http.StatusUnauthorized || status == http.StatusBadRequest {
			writeDomainError(w, r, err)
			return
		}
	}

	model := view.Render()
	slog.Debug("List view rendered",
		"entity", model.Entity,
		"page", model.Page,
		"page_size", model.PageSize,
		"rows", len(model.Rows),
		"error", model.Error)
	writeJSONResponse(w, http.StatusOK, model)
}

func (h *ConsoleHandler) parseListRequest(r *http.Request, current listview.Query) (listRequest, []models.ErrorDetail) {
	q := r.URL.Query()
	req := listRequest{Page: current.Page, Items: current.PageSize, Filter: q.Get("filter")}

	if raw, ok := mux.Vars(r)["page"]; ok {
		req.Page = listview.ParsePageRoute(raw)
	} else if raw := q.Get("page"); raw != "" {
		req.Page = listview.ParsePageRoute(raw)
	}

	if raw := q.Get("items"); raw != "" {
		items, err := strconv.Atoi(raw)
		if err != nil {
			return req, []models.ErrorDetail{{Field: "items", Issue: "must be a number"}}
		}
		req.Items = items
	}

	if err := validate.Struct(req); err != nil {
		return req, validationDetails(err)
	}
	return req, nil
}

// Create handles POST /v1/{entity} - the create dialog
func (h *ConsoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, sl, err := h.view(mux.Vars(r)["entity"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	payload, err := parseMutationPayload(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	created, err := listview.Submit(r.Context(), sl, listview.NewDialog(nil), payload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, created)
}

// Update handles PUT /v1/{entity}/{id} - the edit dialog
func (h *ConsoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, sl, err := h.view(vars["entity"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	payload, err := parseMutationPayload(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	mode := listview.EditDialog{ID: vars["id"], Fields: payload.Fields}
	updated, err := listview.Submit(r.Context(), sl, mode, payload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /v1/{entity}/{id}
func (h *ConsoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, sl, err := h.view(vars["entity"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := sl.Delete(r.Context(), vars["id"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleStatus handles PATCH /v1/{entity}/{id}/toggle-status
func (h *ConsoleHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	_, sl, err := h.view(vars["entity"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !sl.Entity().Toggle {
		writeErrorResponse(w, http.StatusBadRequest, "not_supported",
			fmt.Sprintf("%s has no status toggle", sl.Entity().Name), nil)
		return
	}

	toggled, err := sl.ToggleStatus(r.Context(), vars["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toggled)
}

// parseMutationPayload reads a JSON object or a multipart form
func parseMutationPayload(r *http.Request) (models.MutationPayload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return models.MutationPayload{}, fmt.Errorf("invalid multipart form: %w", err)
		}
		return payloadFromForm(r)
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		if err == io.EOF {
			return models.MutationPayload{Fields: fields}, nil
		}
		return models.MutationPayload{}, fmt.Errorf("invalid JSON in request body: %w", err)
	}
	return models.MutationPayload{Fields: fields}, nil
}

func payloadFromForm(r *http.Request) (models.MutationPayload, error) {
	payload := models.MutationPayload{Fields: make(map[string]any)}

	for key, values := range r.MultipartForm.Value {
		if len(values) == 1 {
			payload.Fields[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		payload.Fields[key] = list
	}

	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				return models.MutationPayload{}, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return models.MutationPayload{}, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
			}
			payload.Files = append(payload.Files, models.BinaryBlob{
				Field:       field,
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return payload, nil
}
