package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/reorder"
	"drip-admin-console/internal/slice"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// writeDomainError maps console and gateway errors onto HTTP statuses
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	requestID := chimw.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"path", r.URL.Path,
			"method", r.Method,
			"request_id", requestID,
			"error", err)
	} else {
		slog.Warn("Request rejected",
			"path", r.URL.Path,
			"method", r.Method,
			"status", status,
			"request_id", requestID,
			"error", err)
	}
	writeErrorResponse(w, status, code, err.Error(), nil)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, entities.ErrUnknownEntity), errors.Is(err, entities.ErrUnknownExport):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, reorder.ErrNotReorderable):
		return http.StatusBadRequest, "not_reorderable"
	case errors.Is(err, reorder.ErrIndexOutOfRange),
		errors.Is(err, slice.ErrInvalidPage),
		errors.Is(err, slice.ErrInvalidPageSize):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, reorder.ErrNotLoaded):
		return http.StatusConflict, "not_loaded"
	case client.IsUnauthorized(err):
		return http.StatusUnauthorized, "session_expired"
	}

	if status := client.StatusCode(err); status >= 400 && status < 500 {
		return status, "backend_rejected"
	}
	return http.StatusBadGateway, "gateway_error"
}

// validationDetails converts validator errors into ErrorDetail entries
func validationDetails(err error) []models.ErrorDetail {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []models.ErrorDetail{{Field: "_", Issue: err.Error()}}
	}

	details := make([]models.ErrorDetail, 0, len(ve))
	for _, fe := range ve {
		details = append(details, models.ErrorDetail{
			Field: fe.Field(),
			Issue: issueForTag(fe.Tag(), fe.Param()),
		})
	}
	return details
}

func issueForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	default:
		return "is invalid"
	}
}
