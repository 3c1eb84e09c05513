package tabledata

import (
	"slices"
	"strings"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// virtualColumn is a rendered-only column holding the joined labels of
// source across a group.
type virtualColumn struct {
	name   string
	source string
}

// grouping folds the rows of a link table into one row per key.
type grouping struct {
	key     string
	columns []virtualColumn
}

var groupings = map[string]grouping{
	schema.TableSensor: {
		key:     "nodoid",
		columns: []virtualColumn{{"tipos", "tipoid"}},
	},
	schema.TableMetricaSensor: {
		key:     "nodoid",
		columns: []virtualColumn{{"tipos", "tipoid"}, {"metricas", "metricaid"}},
	},
	schema.TableUsuarioPerfil: {
		key:     "usuarioid",
		columns: []virtualColumn{{"usuario", "usuarioid"}, {"perfiles", "perfilid"}},
	},
}

// IsGrouped reports whether table is shown as grouped rows.
func IsGrouped(table string) bool {
	_, ok := groupings[table]
	return ok
}

// GroupKey returns the column a grouped table is folded on.
func GroupKey(table string) string {
	return groupings[table].key
}

// VirtualColumns returns the client-side column descriptors for a grouped
// table, nil for any other table.
func VirtualColumns(table string) []schema.Column {
	g, ok := groupings[table]
	if !ok {
		return nil
	}
	cols := make([]schema.Column, len(g.columns))
	for i, c := range g.columns {
		cols[i] = schema.VirtualColumn(c.name)
	}
	return cols
}

// GroupRows folds the rows of a grouped table into one row per group key,
// in order of first appearance. Each grouped row carries the key, the
// virtual columns as comma-joined distinct labels, the ids of its members
// under "ids" and statusid active when any member is active.
func GroupRows(table string, rows []schema.Row, resolver *display.Resolver, refs *display.ReferenceData) []schema.Row {
	g, ok := groupings[table]
	if !ok {
		return nil
	}

	pk := table + schema.PrimaryKeySuffix

	type bucket struct {
		row    schema.Row
		ids    []int64
		labels [][]string
		active bool
	}

	var order []string
	buckets := make(map[string]*bucket)

	for _, row := range rows {
		key := row.String(g.key)
		if key == "" {
			continue
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				row:    schema.Row{g.key: row[g.key]},
				labels: make([][]string, len(g.columns)),
			}
			buckets[key] = b
			order = append(order, key)
		}

		if id, ok := row.Int64(pk); ok {
			b.ids = append(b.ids, id)
		}
		if status, ok := row.Int64(schema.ColumnStatus); !ok || status == schema.StatusActive {
			b.active = true
		}
		for i, c := range g.columns {
			label := resolver.DisplayValue(row, c.source, refs)
			if label != "" && !slices.Contains(b.labels[i], label) {
				b.labels[i] = append(b.labels[i], label)
			}
		}
	}

	grouped := make([]schema.Row, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		for i, c := range g.columns {
			b.row[c.name] = strings.Join(b.labels[i], ", ")
		}
		b.row["ids"] = b.ids
		b.row[schema.ColumnStatus] = schema.StatusInactive
		if b.active {
			b.row[schema.ColumnStatus] = schema.StatusActive
		}
		grouped = append(grouped, b.row)
	}
	return grouped
}
