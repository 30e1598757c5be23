package handlers

import (
	"encoding/json"
	"net/http"

	"drip-admin-console/internal/models"
	"drip-admin-console/internal/store"

	"github.com/gorilla/mux"
)

// OrderHandler serves the manual ordering screen of reorderable entities
type OrderHandler struct {
	store *store.Store
}

// dropRequest is one drag-and-drop gesture
type dropRequest struct {
	From *int `json:"from" validate:"required,min=0"`
	To   *int `json:"to" validate:"required,min=0"`
}

type orderResponse struct {
	Entity string            `json:"entity"`
	Items  []models.Resource `json:"items"`
	Error  string            `json:"error,omitempty"`
}

// NewOrderHandler creates an order handler
func NewOrderHandler(st *store.Store) *OrderHandler {
	return &OrderHandler{store: st}
}

// GetOrder handles GET /v1/{entity}/order - loads the full unpaginated set
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	controller, err := h.store.Reorder(entity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items, err := controller.Load(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Entity: entity, Items: items})
}

// Drop handles POST /v1/{entity}/order - moves one record and saves the order
func (h *OrderHandler) Drop(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	controller, err := h.store.Reorder(entity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req dropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid drop", validationDetails(err))
		return
	}

	if !controller.Loaded() {
		if _, err := controller.Load(r.Context()); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	items, err := controller.Drop(r.Context(), *req.From, *req.To)
	if err != nil {
		status, code := classifyError(err)
		if items == nil {
			writeDomainError(w, r, err)
			return
		}
		// the local order stays applied; report the failed save with it
		w.Header().Set("X-Error-Code", code)
		writeJSONResponse(w, status, orderResponse{Entity: entity, Items: items, Error: err.Error()})
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Entity: entity, Items: items})
}
