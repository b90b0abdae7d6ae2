package datascope

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

// Catalog errors carry stable not-found codes so rule authoring UIs can branch.
// During predicate compilation callers must treat them as fatal for the whole
// operation; a stored rule referencing a retired model or column is
// configuration drift, never something to skip.
var (
	ErrModelNotFound  = apperrors.ErrNotFound.WithMessage("Data rule model does not exist")
	ErrColumnNotFound = apperrors.ErrNotFound.WithMessage("Data rule model column does not exist")
)

// ColumnDetail describes one column available for rule authoring.
type ColumnDetail struct {
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
}

// Model is a resolved registry entry: the table and the set of columns rules
// may target on it.
type Model struct {
	name    string
	table   string
	columns map[string]struct{}
	details []ColumnDetail
}

// Name returns the logical name the model was registered under.
func (m *Model) Name() string { return m.name }

// Table returns the database table backing the model.
func (m *Model) Table() string { return m.table }

// Column returns a qualified column reference, failing closed when the column
// is unknown or excluded from data permissions.
func (m *Model) Column(name string) (clause.Column, error) {
	name = strings.TrimSpace(name)
	if _, ok := m.columns[name]; !ok {
		return clause.Column{}, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, m.name, name)
	}
	return clause.Column{Table: m.table, Name: name}, nil
}

// Columns lists the rule-addressable columns in declaration order.
func (m *Model) Columns() []ColumnDetail {
	out := make([]ColumnDetail, len(m.details))
	copy(out, m.details)
	return out
}

// Registry maps logical model names to schema descriptors. Entries are
// registered once at startup; lookups fail closed on unknown keys so that
// stored rules can never reach tables the deployment did not opt in.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]*Model
	excluded map[string]struct{}

	schemaCache sync.Map
	namer       schema.Namer
}

// NewRegistry constructs an empty registry. excludedColumns lists internal
// bookkeeping fields (audit timestamps, credentials) that rules may never
// target on any model.
func NewRegistry(excludedColumns []string) *Registry {
	excluded := make(map[string]struct{}, len(excludedColumns))
	for _, col := range excludedColumns {
		col = strings.TrimSpace(col)
		if col != "" {
			excluded[col] = struct{}{}
		}
	}

	return &Registry{
		models:   make(map[string]*Model),
		excluded: excluded,
		namer:    schema.NamingStrategy{},
	}
}

// Register introspects the gorm model and stores it under the logical name.
func (r *Registry) Register(name string, model any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("data scope registry: model name is required")
	}
	if model == nil {
		return fmt.Errorf("data scope registry: model %q is nil", name)
	}

	sch, err := schema.Parse(model, &r.schemaCache, r.namer)
	if err != nil {
		return fmt.Errorf("data scope registry: parse model %q: %w", name, err)
	}

	entry := &Model{
		name:    name,
		table:   sch.Table,
		columns: make(map[string]struct{}),
	}
	for _, field := range sch.Fields {
		if field.DBName == "" {
			continue
		}
		if _, skip := r.excluded[field.DBName]; skip {
			continue
		}
		if _, seen := entry.columns[field.DBName]; seen {
			continue
		}
		entry.columns[field.DBName] = struct{}{}
		entry.details = append(entry.details, ColumnDetail{
			Name:    field.DBName,
			Comment: field.Comment,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[name]; exists {
		return fmt.Errorf("data scope registry: model %q already registered", name)
	}
	r.models[name] = entry
	return nil
}

// Resolve returns the registered model descriptor, failing closed on unknown names.
func (r *Registry) Resolve(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.models[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return entry, nil
}

// Names lists the registered logical model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
