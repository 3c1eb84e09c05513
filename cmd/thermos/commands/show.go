package commands

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/tabledata"
)

var (
	// Show flags
	showLimit  int
	showRaw    bool
	activeOnly bool
	wheres     []string
)

// showCmd prints the rows of a table
var showCmd = &cobra.Command{
	Use:   "show <table>",
	Short: "Show the rows of a table",
	Long: `Show the rows of a table, newest first, with foreign keys, users, dates
and statuses rendered as readable values.

Sensor, sensor metric and user profile rows are grouped per node or user
unless --raw or --where is given. --where filters on the backend by a
column's exact value and may be repeated.

Examples:
  thermos show nodo
  thermos show sensor --raw
  thermos show umbral --limit 20 --lang en
  thermos show empresa --where paisid=1
  thermos show pais --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShow(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "Maximum rows to print (0 for all loaded rows)")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Do not group link tables")
	showCmd.Flags().BoolVar(&activeOnly, "active-only", false, "Hide inactive rows")
	showCmd.Flags().StringArrayVarP(&wheres, "where", "w", nil, "Only rows where column=value (repeatable)")
}

func runShow(cmd *cobra.Command, tableName string) error {
	table, err := lookupTable(tableName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	manager, err := sess.loadedTables(ctx)
	if err != nil {
		return err
	}

	var columns []string
	var rows []schema.Row
	if len(wheres) > 0 {
		columns, rows, err = filteredRows(ctx, table.Name)
	} else {
		var state tabledata.State
		state, err = manager.LoadTableData(ctx, table.Name)
		columns, rows = visibleRows(state, showRaw)
	}
	if err != nil {
		return err
	}

	if activeOnly {
		rows = slices.DeleteFunc(slices.Clone(rows), func(row schema.Row) bool {
			status, ok := row.Int64(schema.ColumnStatus)
			return ok && status != schema.StatusActive
		})
	}
	total := len(rows)
	if showLimit > 0 && len(rows) > showLimit {
		rows = rows[:showLimit]
	}

	if jsonOutput {
		return output.JSON(rows)
	}

	output.Section(fmt.Sprintf("%s (%d rows)", table.Name, total))
	if len(rows) == 0 {
		output.Warning("No rows found")
		return nil
	}

	output.Table(headers(columns, sess.lang), renderRows(manager, table.Name, columns, rows))
	if total > len(rows) {
		output.Muted("%d more rows not shown", total-len(rows))
	}
	return nil
}

// filteredRows asks the backend for the rows matching --where, newest first.
func filteredRows(ctx context.Context, table string) ([]string, []schema.Row, error) {
	b, err := sess.backend(ctx)
	if err != nil {
		return nil, nil, err
	}
	cols, err := b.GetTableColumns(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	var columns []string
	for _, c := range cols {
		if !c.Virtual {
			columns = append(columns, c.ColumnName)
		}
	}

	params := url.Values{}
	for _, w := range wheres {
		column, value, ok := strings.Cut(w, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, nil, fmt.Errorf("invalid filter %q, expected column=value", w)
		}
		if !slices.Contains(columns, column) {
			return nil, nil, fmt.Errorf("%s has no column %q", table, column)
		}
		params.Set(column, value)
	}

	rows, err := b.GetRows(ctx, table, params)
	if err != nil {
		return nil, nil, err
	}
	tabledata.SortRows(rows)
	return columns, rows, nil
}

// visibleRows picks the columns and rows to render for a loaded table.
func visibleRows(state tabledata.State, raw bool) ([]string, []schema.Row) {
	if !raw && tabledata.IsGrouped(state.Table) {
		columns := []string{tabledata.GroupKey(state.Table)}
		for _, c := range tabledata.VirtualColumns(state.Table) {
			if c.ColumnName != columns[0] {
				columns = append(columns, c.ColumnName)
			}
		}
		return append(columns, schema.ColumnStatus), state.Grouped
	}

	var columns []string
	for _, c := range state.Columns {
		if !c.Virtual {
			columns = append(columns, c.ColumnName)
		}
	}
	return columns, state.Rows
}

func headers(columns []string, lang display.Lang) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = display.ColumnDisplayNameTranslated(c, lang)
	}
	return out
}

func renderRows(manager *tabledata.Manager, table string, columns []string, rows []schema.Row) [][]string {
	resolver := manager.Resolver()
	refs := manager.References()

	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			cells[j] = resolver.TableValue(table, row, c, refs)
		}
		out[i] = cells
	}
	return out
}
