package entities

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownEntity is returned when an entity name is not registered
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnknownExport is returned when an export kind is not registered
	ErrUnknownExport = errors.New("unknown export")
)

// Entity describes how one resource type is exposed by the backend.
// Path templates may contain the {id} placeholder.
type Entity struct {
	Name     string `yaml:"name" json:"name"`
	Plural   string `yaml:"plural" json:"plural"`
	ItemKey  string `yaml:"itemKey" json:"itemKey"`
	TotalKey string `yaml:"totalKey" json:"totalKey"`
	OrderKey string `yaml:"orderKey" json:"orderKey,omitempty"`

	ListPath   string `yaml:"listPath" json:"listPath"`
	AllPath    string `yaml:"allPath" json:"allPath"`
	AddPath    string `yaml:"addPath" json:"addPath"`
	UpdatePath string `yaml:"updatePath" json:"updatePath"`
	DeletePath string `yaml:"deletePath" json:"deletePath"`
	TogglePath string `yaml:"togglePath" json:"togglePath,omitempty"`
	OrderPath  string `yaml:"orderPath" json:"orderPath,omitempty"`

	FilterParam string `yaml:"filterParam" json:"filterParam,omitempty"`
	StatusField string `yaml:"statusField" json:"statusField,omitempty"`

	Multipart       bool `yaml:"multipart" json:"multipart"`
	PrependOnCreate bool `yaml:"prependOnCreate" json:"prependOnCreate"`
	Toggle          bool `yaml:"toggle" json:"toggle"`
	Reorderable     bool `yaml:"reorderable" json:"reorderable"`
}

// Path expands a path template for the given resource id.
func (e Entity) Path(template, id string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(id))
}

// Export describes a binary download offered by the backend.
type Export struct {
	Kind            string `yaml:"kind" json:"kind"`
	Path            string `yaml:"path" json:"path"`
	DefaultFilename string `yaml:"defaultFilename" json:"defaultFilename"`
}

// Registry holds every known entity and export.
type Registry struct {
	entities map[string]Entity
	exports  map[string]Export
	order    []string
}

// NewEntity builds a descriptor following the backend's route template.
func NewEntity(name, plural string) Entity {
	capPlural := strings.ToUpper(plural[:1]) + plural[1:]
	return Entity{
		Name:        name,
		Plural:      plural,
		ItemKey:     name,
		TotalKey:    "total" + capPlural,
		OrderKey:    "ordered" + capPlural,
		ListPath:    fmt.Sprintf("/%s/get-%s", name, name),
		AllPath:     fmt.Sprintf("/%s/get-%s", name, name),
		AddPath:     fmt.Sprintf("/%s/admin/add", name),
		UpdatePath:  fmt.Sprintf("/%s/admin/update/{id}", name),
		DeletePath:  fmt.Sprintf("/%s/admin/delete/{id}", name),
		TogglePath:  fmt.Sprintf("/%s/{id}/toggle-status", name),
		OrderPath:   fmt.Sprintf("/%s/update-order", name),
		StatusField: "isActive",
	}
}

// DefaultRegistry returns the entity set of the Drip Studios backend.
func DefaultRegistry() *Registry {
	type opts struct {
		multipart, prepend, toggle, reorder bool
		filter                              string
	}
	defs := []struct {
		name, plural string
		opts
	}{
		{"product", "products", opts{multipart: true, prepend: true, toggle: true, filter: "categories"}},
		{"category", "categories", opts{multipart: true, toggle: true, reorder: true}},
		{"tag", "tags", opts{toggle: true}},
		{"order", "orders", opts{prepend: true, filter: "status"}},
		{"combo", "combos", opts{multipart: true, prepend: true, toggle: true, reorder: true}},
		{"collabo", "collabos", opts{multipart: true, prepend: true, toggle: true}},
		{"lookbook", "lookbooks", opts{multipart: true, prepend: true, toggle: true}},
		{"specialframe", "specialFrames", opts{multipart: true, toggle: true, reorder: true}},
		{"contact", "contacts", opts{prepend: true}},
		{"paymentquery", "paymentQueries", opts{prepend: true}},
		{"returnrefund", "returnRefunds", opts{prepend: true, filter: "status"}},
		{"user", "users", opts{toggle: true}},
	}

	r := &Registry{
		entities: make(map[string]Entity, len(defs)),
		exports:  make(map[string]Export),
	}
	for _, d := range defs {
		e := NewEntity(d.name, d.plural)
		e.Multipart = d.multipart
		e.PrependOnCreate = d.prepend
		e.Toggle = d.toggle
		e.Reorderable = d.reorder
		e.FilterParam = d.filter
		if !e.Toggle {
			e.TogglePath = ""
		}
		if !e.Reorderable {
			e.OrderPath = ""
			e.OrderKey = ""
		}
		r.Register(e)
	}

	r.RegisterExport(Export{Kind: "contacts", Path: "/contact/admin/export", DefaultFilename: "contacts.xlsx"})
	r.RegisterExport(Export{Kind: "emails", Path: "/user/admin/export-emails", DefaultFilename: "emails.xlsx"})

	return r
}

// Register adds or replaces an entity.
func (r *Registry) Register(e Entity) {
	if _, exists := r.entities[e.Name]; !exists {
		r.order = append(r.order, e.Name)
	}
	r.entities[e.Name] = e
}

// RegisterExport adds or replaces an export.
func (r *Registry) RegisterExport(x Export) {
	r.exports[x.Kind] = x
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Entity, error) {
	e, ok := r.entities[strings.ToLower(name)]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// Export returns the export descriptor for kind.
func (r *Registry) Export(kind string) (Export, error) {
	x, ok := r.exports[strings.ToLower(kind)]
	if !ok {
		return Export{}, fmt.Errorf("%w: %s", ErrUnknownExport, kind)
	}
	return x, nil
}

// All returns the entities in registration order.
func (r *Registry) All() []Entity {
	out := make([]Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Exports returns the export kinds sorted by name.
func (r *Registry) Exports() []Export {
	out := make([]Export, 0, len(r.exports))
	for _, x := range r.exports {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// overrideFile is the on-disk shape of ENTITIES_FILE.
type overrideFile struct {
	Entities []entityOverride `yaml:"entities"`
	Exports  []Export         `yaml:"exports"`
}

type entityOverride struct {
	Name        string `yaml:"name"`
	Plural      string `yaml:"plural"`
	ItemKey     string `yaml:"itemKey"`
	TotalKey    string `yaml:"totalKey"`
	OrderKey    string `yaml:"orderKey"`
	ListPath    string `yaml:"listPath"`
	AllPath     string `yaml:"allPath"`
	AddPath     string `yaml:"addPath"`
	UpdatePath  string `yaml:"updatePath"`
	DeletePath  string `yaml:"deletePath"`
	TogglePath  string `yaml:"togglePath"`
	OrderPath   string `yaml:"orderPath"`
	FilterParam string `yaml:"filterParam"`
	StatusField string `yaml:"statusField"`

	Multipart       *bool `yaml:"multipart"`
	PrependOnCreate *bool `yaml:"prependOnCreate"`
	Toggle          *bool `yaml:"toggle"`
	Reorderable     *bool `yaml:"reorderable"`
}

// LoadOverrides merges a YAML overrides file into the registry. Only the
// fields present in the file replace the defaults; unknown entities are added.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read entities file: %w", err)
	}
	return r.ApplyOverrides(data)
}

// ApplyOverrides merges YAML override data into the registry.
func (r *Registry) ApplyOverrides(data []byte) error {
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse entities file: %w", err)
	}

	for _, o := range file.Entities {
		name := strings.ToLower(o.Name)
		if name == "" {
			return fmt.Errorf("entity override without name")
		}

		base, exists := r.entities[name]
		if !exists {
			plural := o.Plural
			if plural == "" {
				plural = name + "s"
			}
			base = NewEntity(name, plural)
		}
		merged := mergeEntity(base, o)
		r.Register(merged)

		slog.Debug("Entity override applied", "entity", name, "new", !exists)
	}

	for _, x := range file.Exports {
		if x.Kind == "" || x.Path == "" {
			return fmt.Errorf("export override requires kind and path")
		}
		r.RegisterExport(x)
	}

	return nil
}

func mergeEntity(base Entity, o entityOverride) Entity {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}

	setString(&base.Plural, o.Plural)
	setString(&base.ItemKey, o.ItemKey)
	setString(&base.TotalKey, o.TotalKey)
	setString(&base.OrderKey, o.OrderKey)
	setString(&base.ListPath, o.ListPath)
	setString(&base.AllPath, o.AllPath)
	setString(&base.AddPath, o.AddPath)
	setString(&base.UpdatePath, o.UpdatePath)
	setString(&base.DeletePath, o.DeletePath)
	setString(&base.TogglePath, o.TogglePath)
	setString(&base.OrderPath, o.OrderPath)
	setString(&base.FilterParam, o.FilterParam)
	setString(&base.StatusField, o.StatusField)
	setBool(&base.Multipart, o.Multipart)
	setBool(&base.PrependOnCreate, o.PrependOnCreate)
	setBool(&base.Toggle, o.Toggle)
	setBool(&base.Reorderable, o.Reorderable)

	// re-enabled capabilities fall back to the route template
	defaults := NewEntity(base.Name, base.Plural)
	if base.Toggle && base.TogglePath == "" {
		base.TogglePath = defaults.TogglePath
	}
	if base.Reorderable && base.OrderPath == "" {
		base.OrderPath = defaults.OrderPath
	}
	if base.Reorderable && base.OrderKey == "" {
		base.OrderKey = defaults.OrderKey
	}

	return base
}
