package schema

import (
	"strings"
)

// Kind is the rendering family of a column, derived from its backend type.
type Kind string

const (
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindDecimal  Kind = "decimal"
	KindBoolean  Kind = "boolean"
	KindDateTime Kind = "datetime"
	KindJSON     Kind = "json"
	KindUnknown  Kind = "unknown"
)

// Column describes one column as reported by the backend's column metadata
// endpoint. Virtual columns are synthesized client-side for grouped views
// and are never persisted.
type Column struct {
	ColumnName   string  `json:"columnName"`
	DataType     string  `json:"dataType"`
	IsNullable   bool    `json:"isNullable"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	IsIdentity   bool    `json:"isIdentity"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
	Virtual      bool    `json:"-"`
}

// Kind maps the column's PostgreSQL data type to its rendering family.
func (c Column) Kind() Kind {
	return KindOf(c.DataType)
}

// VirtualColumn returns a descriptor for a client-side derived column.
func VirtualColumn(name string) Column {
	return Column{
		ColumnName: name,
		DataType:   "text",
		IsNullable: true,
		Virtual:    true,
	}
}

// KindOf maps a PostgreSQL type name (as found in information_schema) to a Kind.
func KindOf(dataType string) Kind {
	t := strings.ToLower(strings.TrimSpace(dataType))

	// Handle array types
	if strings.HasSuffix(t, "[]") || t == "array" {
		return KindJSON
	}

	switch {
	case t == "boolean" || t == "bool":
		return KindBoolean
	case t == "smallint" || t == "integer" || t == "bigint" || t == "int" ||
		t == "int2" || t == "int4" || t == "int8" ||
		t == "serial" || t == "bigserial" || t == "smallserial":
		return KindInteger
	case t == "real" || t == "double precision" || t == "float4" || t == "float8" ||
		strings.HasPrefix(t, "numeric") || strings.HasPrefix(t, "decimal"):
		return KindDecimal
	case strings.HasPrefix(t, "timestamp") || t == "date" || t == "timestamptz" ||
		strings.HasPrefix(t, "time"):
		return KindDateTime
	case t == "json" || t == "jsonb":
		return KindJSON
	case t == "text" || t == "uuid" || strings.HasPrefix(t, "character") ||
		strings.HasPrefix(t, "varchar") || strings.HasPrefix(t, "char"):
		return KindText
	}

	return KindUnknown
}
