package pgsource

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// columnsSQL reads column metadata the way the REST backend reports it.
const columnsSQL = `SELECT c.column_name,
       c.data_type,
       c.is_nullable = 'YES',
       c.column_default,
       c.is_identity = 'YES',
       EXISTS (
           SELECT 1
           FROM information_schema.table_constraints tc
           JOIN information_schema.key_column_usage k
             ON k.constraint_name = tc.constraint_name
            AND k.table_schema = tc.table_schema
           WHERE tc.constraint_type = 'PRIMARY KEY'
             AND tc.table_schema = c.table_schema
             AND tc.table_name = c.table_name
             AND k.column_name = c.column_name
       )
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

func qualified(schemaName, table string) string {
	return pgx.Identifier{schemaName, table}.Sanitize()
}

func quote(column string) string {
	return pgx.Identifier{column}.Sanitize()
}

// selectSQL builds a SELECT of table, newest primary keys first. filters are
// equality conditions, applied in column order; string values compare with
// the column cast to text.
func selectSQL(schemaName, table string, filters map[string]any, limit int) (string, []any) {
	var sql strings.Builder
	var args []any

	sql.WriteString("SELECT * FROM ")
	sql.WriteString(qualified(schemaName, table))

	if len(filters) > 0 {
		sql.WriteString(" WHERE ")
		for i, column := range slices.Sorted(maps.Keys(filters)) {
			if i > 0 {
				sql.WriteString(" AND ")
			}
			value := filters[column]
			args = append(args, value)
			sql.WriteString(quote(column))
			if _, ok := value.(string); ok {
				sql.WriteString("::text")
			}
			sql.WriteString(" = $")
			sql.WriteString(strconv.Itoa(len(args)))
		}
	}

	sql.WriteString(" ORDER BY ")
	sql.WriteString(quote(table + schema.PrimaryKeySuffix))
	sql.WriteString(" DESC")

	if limit > 0 {
		sql.WriteString(" LIMIT ")
		sql.WriteString(strconv.Itoa(limit))
	}

	return sql.String(), args
}

// insertSQL builds an INSERT of row returning the new primary key.
func insertSQL(schemaName, table string, row schema.Row) (string, []any, error) {
	columns := slices.Sorted(maps.Keys(row))
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no values to insert")
	}

	var sql strings.Builder
	args := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	quoted := make([]string, 0, len(columns))

	for _, column := range columns {
		args = append(args, argValue(row[column]))
		quoted = append(quoted, quote(column))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}

	sql.WriteString("INSERT INTO ")
	sql.WriteString(qualified(schemaName, table))
	sql.WriteString(" (")
	sql.WriteString(strings.Join(quoted, ", "))
	sql.WriteString(") VALUES (")
	sql.WriteString(strings.Join(placeholders, ", "))
	sql.WriteString(") RETURNING ")
	sql.WriteString(quote(table + schema.PrimaryKeySuffix))

	return sql.String(), args, nil
}

// updateSQL builds an UPDATE of the row with id, setting the columns of row.
func updateSQL(schemaName, table string, id int64, row schema.Row) (string, []any, error) {
	columns := slices.Sorted(maps.Keys(row))
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no values to update")
	}

	var sql strings.Builder
	args := make([]any, 0, len(columns)+1)
	sets := make([]string, 0, len(columns))

	for _, column := range columns {
		args = append(args, argValue(row[column]))
		sets = append(sets, quote(column)+" = $"+strconv.Itoa(len(args)))
	}
	args = append(args, id)

	sql.WriteString("UPDATE ")
	sql.WriteString(qualified(schemaName, table))
	sql.WriteString(" SET ")
	sql.WriteString(strings.Join(sets, ", "))
	sql.WriteString(" WHERE ")
	sql.WriteString(quote(table + schema.PrimaryKeySuffix))
	sql.WriteString(" = $")
	sql.WriteString(strconv.Itoa(len(args)))

	return sql.String(), args, nil
}

// inactivateSQL builds the status flip used in place of DELETE.
func inactivateSQL(schemaName, table string, id int64) (string, []any) {
	sql := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2",
		qualified(schemaName, table),
		quote(schema.ColumnStatus),
		quote(table+schema.PrimaryKeySuffix))
	return sql, []any{schema.StatusInactive, id}
}
