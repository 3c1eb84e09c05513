// Package schema describes the Thermos relational schema: rows, column
// metadata and the per-table rules the console enforces client-side.
package schema

// Audit and status columns shared by every table.
const (
	ColumnStatus         = "statusid"
	ColumnUserCreated    = "usercreatedid"
	ColumnDateCreated    = "datecreated"
	ColumnUserModified   = "usermodifiedid"
	ColumnDateModified   = "datemodified"
	StatusActive         = 1
	StatusInactive       = 0
	PrimaryKeySuffix     = "id"
	DefaultReferenceRows = 500
	DefaultTableRows     = 1000
)

// ForeignKey links a column of one table to the primary key of another.
type ForeignKey struct {
	Column     string
	References string
}

// Issue is a rule violation reported by a table's custom check. Code selects
// the message template; Params fill it in.
type Issue struct {
	Field  string
	Code   string
	Params []any
}

// Table is the client-side definition of one backend table.
type Table struct {
	Name string

	// LabelField is the human-readable column shown in place of this table's id.
	LabelField string

	// Required columns must be present and non-blank on insert and update.
	Required []string

	// Formats maps a column to validator tags applied when the column is present.
	Formats map[string]string

	// NaturalKeys are column sets that must be unique among a table's rows.
	NaturalKeys [][]string

	ForeignKeys []ForeignKey

	// Check runs table-specific rules that span more than one column.
	Check func(row Row) []Issue
}

// PrimaryKey returns the table's id column, "<table>id".
func (t *Table) PrimaryKey() string {
	return t.Name + PrimaryKeySuffix
}

// ID extracts the table's primary key from a row.
func (t *Table) ID(row Row) (int64, bool) {
	return row.Int64(t.PrimaryKey())
}

// ForeignKey returns the foreign key declared on column, if any.
func (t *Table) ForeignKey(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// References reports whether the table has a foreign key pointing at target.
func (t *Table) References(target string) bool {
	for _, fk := range t.ForeignKeys {
		if fk.References == target {
			return true
		}
	}
	return false
}

// Label returns the row's label column, falling back to its id.
func (t *Table) Label(row Row) string {
	if t.LabelField != "" {
		if label := row.String(t.LabelField); label != "" {
			return label
		}
	}
	return row.String(t.PrimaryKey())
}
