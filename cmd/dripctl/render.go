package main

import (
	"fmt"
	"sort"
	"strings"

	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/listview"
	"drip-admin-console/internal/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorAccent  = lipgloss.Color("#C084FC")
	colorBorder  = lipgloss.Color("#6B4E8C")
	colorSuccess = lipgloss.Color("#4ADE80")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#7A7A8C")
)

var styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Error:   lipgloss.NewStyle().Foreground(colorError),
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		})
}

// renderList prints one page of a list view
func renderList(model listview.Model) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(model.Entity))
	if model.Filter != "" {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  filter: %s", model.Filter)))
	}
	b.WriteString("\n")

	if model.Error != "" {
		b.WriteString(styles.Error.Render(model.Error))
		b.WriteString("\n")
	}

	if model.Empty {
		text := model.EmptyText
		if text == "" {
			text = listview.EmptyMessage
		}
		b.WriteString(styles.Muted.Render(text))
		return b.String()
	}

	headers := append([]string{"id"}, model.Columns...)
	t := newTable(headers...)
	for _, row := range model.Rows {
		t.Row(append([]string{row.ID}, row.Cells...)...)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(styles.Muted.Render(fmt.Sprintf("%s  (%d total)", model.PageLabel, model.TotalItems)))
	return b.String()
}

// renderEntities prints the registry
func renderEntities(all []entities.Entity, exports []entities.Export) string {
	t := newTable("entity", "list path", "toggle", "reorder", "multipart")
	for _, e := range all {
		t.Row(e.Name, e.ListPath, yesNo(e.Toggle), yesNo(e.Reorderable), yesNo(e.Multipart))
	}

	var b strings.Builder
	b.WriteString(t.Render())
	if len(exports) > 0 {
		kinds := make([]string, 0, len(exports))
		for _, x := range exports {
			kinds = append(kinds, x.Kind)
		}
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("exports: " + strings.Join(kinds, ", ")))
	}
	return b.String()
}

// renderRecord prints the fields of a single record, sorted by name
func renderRecord(verb string, res models.Resource) string {
	keys := make([]string, 0, len(res.Fields))
	for k := range res.Fields {
		if k == "_id" || k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("field", "value")
	t.Row("id", res.ID)
	for _, k := range keys {
		t.Row(k, listview.FormatCell(res.Fields[k]))
	}
	return styles.Success.Render(fmt.Sprintf("%s %s", verb, res.ID)) + "\n" + t.Render()
}

// renderOrder prints records in their manual order
func renderOrder(items []models.Resource) string {
	t := newTable("#", "id", "name")
	for i, item := range items {
		t.Row(fmt.Sprint(i), item.ID, item.String("name"))
	}
	return t.Render()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
