package listview

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"drip-admin-console/internal/models"
	"drip-admin-console/internal/slice"
)

// EmptyMessage is shown when a page has no records
const EmptyMessage = "no records"

const maxCellWidth = 48

// hidden fields never become derived columns
var hidden = map[string]bool{
	"_id":      true,
	"id":       true,
	"__v":      true,
	"password": true,
}

// Row is one rendered record
type Row struct {
	ID     string   `json:"id"`
	Cells  []string `json:"cells"`
	Active *bool    `json:"active,omitempty"`
}

// Model is everything a front end needs to draw a list page
type Model struct {
	Entity     string   `json:"entity"`
	Columns    []string `json:"columns"`
	Rows       []Row    `json:"rows"`
	Empty      bool     `json:"empty"`
	EmptyText  string   `json:"emptyText,omitempty"`
	Loading    bool     `json:"loading"`
	Error      string   `json:"error,omitempty"`
	Busy       bool     `json:"busy"`
	TaskError  string   `json:"taskError,omitempty"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	Filter     string   `json:"filter,omitempty"`
	TotalPages int      `json:"totalPages"`
	TotalItems int      `json:"totalItems"`
	PageLabel  string   `json:"pageLabel"`
	HasPrev    bool     `json:"hasPrev"`
	HasNext    bool     `json:"hasNext"`
}

// Render converts a slice state into a Model. Without explicit columns the
// union of the records' field names is used.
func Render(state slice.State, columns ...string) Model {
	list := state.List
	if len(columns) == 0 {
		columns = DeriveColumns(list.Items)
	}

	m := Model{
		Entity:     state.Entity,
		Columns:    columns,
		Rows:       make([]Row, 0, len(list.Items)),
		Loading:    list.IsLoading,
		Busy:       state.TaskLoading,
		Page:       list.Page,
		PageSize:   list.PageSize,
		Filter:     list.Filter,
		TotalPages: list.TotalPages,
		TotalItems: list.TotalItems,
	}
	if list.LastError != nil {
		m.Error = list.LastError.Error()
	}
	if state.TaskError != nil {
		m.TaskError = state.TaskError.Error()
	}

	for _, item := range list.Items {
		row := Row{ID: item.ID, Cells: make([]string, len(columns))}
		for i, col := range columns {
			row.Cells[i] = FormatCell(item.Fields[col])
		}
		if active, ok := item.Bool(state.StatusField); ok {
			row.Active = &active
		}
		m.Rows = append(m.Rows, row)
	}

	if !m.Loading && len(m.Rows) == 0 {
		m.Empty = true
		m.EmptyText = EmptyMessage
	}

	if m.Page > 0 {
		m.PageLabel = fmt.Sprintf("Page %d of %d", m.Page, max(m.TotalPages, 1))
		m.HasPrev = m.Page > 1
		m.HasNext = m.Page < m.TotalPages
	}
	return m
}

// DeriveColumns returns the sorted union of visible scalar field names
func DeriveColumns(items []models.Resource) []string {
	seen := make(map[string]bool)
	for _, item := range items {
		for key, value := range item.Fields {
			if hidden[key] || seen[key] {
				continue
			}
			if _, nested := value.(map[string]any); nested {
				continue
			}
			seen[key] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

// FormatCell renders a field value as a single line of text
func FormatCell(value any) string {
	var text string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		text = v
	case json.Number:
		text = v.String()
	case bool:
		if v {
			text = "yes"
		} else {
			text = "no"
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			parts = append(parts, FormatCell(elem))
		}
		text = strings.Join(parts, ", ")
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			text = name
		} else {
			data, _ := json.Marshal(v)
			text = string(data)
		}
	default:
		text = fmt.Sprint(v)
	}

	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxCellWidth {
		text = string(runes[:maxCellWidth-1]) + "…"
	}
	return text
}
