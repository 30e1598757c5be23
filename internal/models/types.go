package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Resource is one backend record. Only the identity and creation time are
// interpreted by the console; every other field is opaque domain data.
type Resource struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// UnmarshalJSON accepts both "_id" and "id" as the identity field.
func (r *Resource) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("failed to decode resource: %w", err)
	}

	r.Fields = fields
	r.ID = ""
	for _, key := range []string{"_id", "id"} {
		if raw, ok := fields[key]; ok && raw != nil {
			r.ID = fmt.Sprint(raw)
			break
		}
	}

	r.CreatedAt = time.Time{}
	if raw, ok := fields["createdAt"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			r.CreatedAt = ts
		}
	}

	return nil
}

// MarshalJSON writes the opaque fields back with the identity under "id".
func (r Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.ID != "" {
		if _, ok := out["_id"]; !ok {
			out["id"] = r.ID
		}
	}
	return json.Marshal(out)
}

// String returns a field rendered as text, or "" when absent.
func (r Resource) String(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns a boolean field and whether it was present with a boolean value.
func (r Resource) Bool(key string) (bool, bool) {
	v, ok := r.Fields[key].(bool)
	return v, ok
}

// Clone returns a copy whose field map can be mutated independently.
func (r Resource) Clone() Resource {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Resource{ID: r.ID, CreatedAt: r.CreatedAt, Fields: fields}
}

// Pagination is the pagination block returned with every list page.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

// Page is one decoded list response.
type Page struct {
	Items      []Resource `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// ReorderItem assigns a position to one resource.
type ReorderItem struct {
	ResourceID string `json:"id" validate:"required"`
	Order      int    `json:"order" validate:"min=0"`
}

// ReorderBatch is the full ordered sequence submitted atomically.
type ReorderBatch []ReorderItem

// BinaryBlob is one uploaded file of a mutation.
type BinaryBlob struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// MutationPayload is the input of create and update operations. Fields are
// sent as a JSON object, or as multipart form values when Files is not empty.
type MutationPayload struct {
	Fields map[string]any
	Files  []BinaryBlob
}

// HasFiles reports whether the payload must be sent as multipart.
func (p MutationPayload) HasFiles() bool {
	return len(p.Files) > 0
}

// Download is a binary export returned by the backend.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
