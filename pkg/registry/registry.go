// Package registry provides a central registry of Thermos table definitions.
package registry

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Dependent is a table whose foreign key points at another table.
type Dependent struct {
	Table  string
	Column string
}

// Registry is a thread-safe registry of table definitions keyed by name.
type Registry struct {
	mu         sync.RWMutex
	names      map[string]*schema.Table
	dependents map[string][]Dependent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		names:      make(map[string]*schema.Table),
		dependents: make(map[string][]Dependent),
	}
}

// NewThermosRegistry creates a Registry preloaded with the Thermos catalog.
func NewThermosRegistry() *Registry {
	r := NewRegistry()
	for _, table := range schema.Catalog() {
		// Catalog names are unique; Register cannot fail here.
		_ = r.Register(table)
	}
	return r
}

// Register adds a table definition. Registering the same name twice is a no-op.
func (r *Registry) Register(table *schema.Table) error {
	if table == nil || table.Name == "" {
		return fmt.Errorf("table definition must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if already registered
	if _, ok := r.names[table.Name]; ok {
		return nil
	}

	r.names[table.Name] = table
	r.rebuildDependents()

	return nil
}

// rebuildDependents recomputes the reverse foreign-key index. Callers hold mu.
func (r *Registry) rebuildDependents() {
	dependents := make(map[string][]Dependent, len(r.names))
	for _, table := range r.names {
		for _, fk := range table.ForeignKeys {
			dependents[fk.References] = append(dependents[fk.References], Dependent{
				Table:  table.Name,
				Column: fk.Column,
			})
		}
	}

	// Sort for deterministic check order
	for name := range dependents {
		slices.SortFunc(dependents[name], func(a, b Dependent) int {
			if c := cmp.Compare(a.Table, b.Table); c != 0 {
				return c
			}
			return cmp.Compare(a.Column, b.Column)
		})
	}

	r.dependents = dependents
}

// GetByName retrieves a table definition by name.
func (r *Registry) GetByName(tableName string) (*schema.Table, error) {
	r.mu.RLock()
	table, ok := r.names[tableName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrUnknownTable, tableName)
	}

	return table, nil
}

// HasTable checks if a table name is registered.
func (r *Registry) HasTable(tableName string) bool {
	r.mu.RLock()
	_, ok := r.names[tableName]
	r.mu.RUnlock()

	return ok
}

// All returns all registered tables sorted by name.
func (r *Registry) All() []*schema.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make([]*schema.Table, 0, len(r.names))
	for _, table := range r.names {
		tables = append(tables, table)
	}
	slices.SortFunc(tables, func(a, b *schema.Table) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return tables
}

// AllNames returns all registered table names, sorted.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Dependents returns the tables holding a foreign key to tableName.
func (r *Registry) Dependents(tableName string) []Dependent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.dependents[tableName])
}

// ReferencedTable returns the table a foreign-key column points at, as
// declared by any registered table.
func (r *Registry) ReferencedTable(column string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, table := range r.names {
		if fk, ok := table.ForeignKey(column); ok {
			return fk.References, true
		}
	}

	// A bare "<table>id" column still resolves when no table declares it
	for name := range r.names {
		if column == name+schema.PrimaryKeySuffix {
			return name, true
		}
	}

	return "", false
}

// Clear removes all registered tables.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names = make(map[string]*schema.Table)
	r.dependents = make(map[string][]Dependent)
}

// globalRegistry is the default registry, loaded with the Thermos catalog.
var globalRegistry = NewThermosRegistry()

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}

// Register registers a table in the global registry.
func Register(table *schema.Table) error {
	return globalRegistry.Register(table)
}

// GetByName retrieves a table definition from the global registry.
func GetByName(tableName string) (*schema.Table, error) {
	return globalRegistry.GetByName(tableName)
}

// AllNames returns every table name in the global registry.
func AllNames() []string {
	return globalRegistry.AllNames()
}
