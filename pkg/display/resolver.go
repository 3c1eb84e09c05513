// Package display turns raw row values into the text shown to users:
// foreign keys become labels, status and boolean flags become words and
// timestamps are formatted for the active language.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// DefaultCacheSize bounds the number of memoized labels.
const DefaultCacheSize = 4096

var referenceVersion atomic.Uint64

// ReferenceData is an immutable snapshot of the reference tables used to
// resolve foreign keys. Each snapshot carries a distinct version so labels
// memoized against an older snapshot are never served for a newer one.
type ReferenceData struct {
	version uint64
	tables  map[string][]schema.Row
}

// NewReferenceData wraps rows keyed by table name in a new snapshot.
func NewReferenceData(tables map[string][]schema.Row) *ReferenceData {
	copied := make(map[string][]schema.Row, len(tables))
	for name, rows := range tables {
		copied[name] = rows
	}
	return &ReferenceData{
		version: referenceVersion.Add(1),
		tables:  copied,
	}
}

// Version identifies the snapshot.
func (d *ReferenceData) Version() uint64 {
	if d == nil {
		return 0
	}
	return d.version
}

// Rows returns the rows of a reference table, nil when it was not loaded.
func (d *ReferenceData) Rows(table string) []schema.Row {
	if d == nil {
		return nil
	}
	return d.tables[table]
}

// Len returns the number of tables in the snapshot.
func (d *ReferenceData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.tables)
}

// userColumns hold usuario ids and resolve to a person's name.
var userColumns = map[string]bool{
	schema.ColumnUserCreated:  true,
	schema.ColumnUserModified: true,
	"usuarioid":               true,
}

var dateLayouts = map[Lang]string{
	Spanish: "02/01/2006, 15:04:05",
	English: "1/2/2006, 3:04:05 PM",
}

// Resolver renders column values for display.
type Resolver struct {
	registry *registry.Registry
	cache    *lru.Cache[string, string]
	lang     Lang
	location *time.Location
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLanguage sets the language of status, boolean and date text.
func WithLanguage(lang Lang) Option {
	return func(r *Resolver) {
		r.lang = lang
	}
}

// WithLocation sets the zone timestamps are shown in (default time.Local).
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithRegistry resolves foreign keys against reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(r *Resolver) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// NewResolver creates a Resolver with a label cache of DefaultCacheSize entries.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry.Default(),
		lang:     Spanish,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}

	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, string](DefaultCacheSize)
	r.cache = cache

	return r
}

// Language returns the resolver's language.
func (r *Resolver) Language() Lang {
	return r.lang
}

// Clear drops every memoized label.
func (r *Resolver) Clear() {
	r.cache.Purge()
}

// DisplayValue returns the human-readable text for row[column].
func (r *Resolver) DisplayValue(row schema.Row, column string, refs *ReferenceData) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}

	if column == schema.ColumnStatus {
		return r.status(v)
	}

	if userColumns[column] {
		if id, ok := schema.ToInt64(v); ok {
			if name, found := r.userName(id, refs); found {
				return name
			}
		}
		return schema.FormatValue(v)
	}

	lower := strings.ToLower(column)
	if strings.Contains(lower, "fecha") || strings.Contains(lower, "date") {
		return r.date(v)
	}

	if table, ok := r.registry.ReferencedTable(column); ok {
		if id, ok := schema.ToInt64(v); ok {
			if label, found := r.Label(table, id, refs); found {
				return label
			}
		}
		return schema.FormatValue(v)
	}

	if b, ok := v.(bool); ok {
		return r.yesNo(b)
	}

	return schema.FormatValue(v)
}

// TableValue is DisplayValue for a row known to belong to table. The table's
// own primary key is shown as the raw id instead of its label.
func (r *Resolver) TableValue(table string, row schema.Row, column string, refs *ReferenceData) string {
	if column == table+schema.PrimaryKeySuffix {
		return schema.FormatValue(row[column])
	}
	return r.DisplayValue(row, column, refs)
}

// Label returns the label of the row of table whose id is id.
func (r *Resolver) Label(table string, id int64, refs *ReferenceData) (string, bool) {
	key := cacheKey(refs, table, id)
	if label, ok := r.cache.Get(key); ok {
		return label, true
	}

	def, err := r.registry.GetByName(table)
	if err != nil {
		return "", false
	}

	row, ok := find(refs.Rows(table), def.PrimaryKey(), id)
	if !ok {
		return "", false
	}

	label := def.Label(row)
	r.cache.Add(key, label)
	return label, true
}

func (r *Resolver) userName(id int64, refs *ReferenceData) (string, bool) {
	key := cacheKey(refs, schema.TableUsuario, id)
	if name, ok := r.cache.Get(key); ok {
		return name, true
	}

	row, ok := find(refs.Rows(schema.TableUsuario), schema.TableUsuario+schema.PrimaryKeySuffix, id)
	if !ok {
		return "", false
	}

	name := strings.TrimSpace(row.String("firstname") + " " + row.String("lastname"))
	if name == "" {
		name = row.String("login")
	}
	if name == "" {
		return "", false
	}

	r.cache.Add(key, name)
	return name, true
}

func (r *Resolver) status(v any) string {
	n, ok := schema.ToInt64(v)
	if !ok {
		if b, isBool := v.(bool); isBool {
			n, ok = 0, true
			if b {
				n = schema.StatusActive
			}
		}
	}
	if !ok {
		return schema.FormatValue(v)
	}

	switch n {
	case schema.StatusActive:
		return caption{"Activo", "Active"}.in(r.lang)
	case schema.StatusInactive:
		return caption{"Inactivo", "Inactive"}.in(r.lang)
	}
	return schema.FormatValue(v)
}

func (r *Resolver) yesNo(b bool) string {
	if b {
		return caption{"Sí", "Yes"}.in(r.lang)
	}
	return caption{"No", "No"}.in(r.lang)
}

func (r *Resolver) date(v any) string {
	t, ok := schema.ToTime(v)
	if !ok {
		return schema.FormatValue(v)
	}

	layout, ok := dateLayouts[r.lang]
	if !ok {
		layout = dateLayouts[Spanish]
	}
	return t.In(r.location).Format(layout)
}

func cacheKey(refs *ReferenceData, table string, id int64) string {
	return fmt.Sprintf("%d:%s_%d", refs.Version(), table, id)
}

func find(rows []schema.Row, pk string, id int64) (schema.Row, bool) {
	for _, row := range rows {
		if rowID, ok := row.Int64(pk); ok && rowID == id {
			return row, true
		}
	}
	return nil, false
}
