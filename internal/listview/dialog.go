package listview

import (
	"context"

	"drip-admin-console/internal/models"
	"drip-admin-console/internal/slice"
)

// DialogMode is either CreateDialog or EditDialog
type DialogMode interface {
	Title() string
	dialog()
}

// CreateDialog opens an empty form
type CreateDialog struct {
	Fields map[string]any `json:"fields"`
}

// EditDialog opens a form pre-filled from an existing record
type EditDialog struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (CreateDialog) Title() string { return "Create" }
func (EditDialog) Title() string   { return "Edit" }

func (CreateDialog) dialog() {}
func (EditDialog) dialog()   {}

// NewDialog resolves the mode once: nil selection means create
func NewDialog(selected *models.Resource) DialogMode {
	if selected == nil {
		return CreateDialog{Fields: map[string]any{}}
	}
	clone := selected.Clone()
	return EditDialog{ID: clone.ID, Fields: clone.Fields}
}

// Submit dispatches the dialog to Create or Update on s
func Submit(ctx context.Context, s *slice.Slice, mode DialogMode, payload models.MutationPayload) (models.Resource, error) {
	switch d := mode.(type) {
	case EditDialog:
		return s.Update(ctx, d.ID, payload)
	default:
		return s.Create(ctx, payload)
	}
}
