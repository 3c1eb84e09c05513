package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// tablesCmd lists the registered tables
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the managed tables",
	Long: `List every table the console manages, with the column shown as its label,
the tables it references and the tables that reference it.

Examples:
  thermos tables
  thermos tables --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTables()
	},
}

// columnsCmd shows the backend column metadata of a table
var columnsCmd = &cobra.Command{
	Use:   "columns <table>",
	Short: "Show the columns of a table",
	Long: `Show the column metadata the backend reports for a table.

Examples:
  thermos columns nodo
  thermos columns umbral --lang en`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runColumns(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd, columnsCmd)
}

type tableInfo struct {
	Name         string   `json:"name"`
	LabelField   string   `json:"labelField"`
	Required     []string `json:"required"`
	References   []string `json:"references"`
	ReferencedBy []string `json:"referencedBy"`
}

func runTables() error {
	var infos []tableInfo
	for _, t := range registry.Default().All() {
		info := tableInfo{
			Name:       t.Name,
			LabelField: t.LabelField,
			Required:   t.Required,
		}
		for _, fk := range t.ForeignKeys {
			info.References = append(info.References, fk.References)
		}
		for _, dep := range registry.Default().Dependents(t.Name) {
			info.ReferencedBy = append(info.ReferencedBy, dep.Table+"."+dep.Column)
		}
		infos = append(infos, info)
	}

	if jsonOutput {
		return output.JSON(infos)
	}

	output.Section(fmt.Sprintf("Tables (%d)", len(infos)))
	rows := make([][]string, len(infos))
	for i, info := range infos {
		rows[i] = []string{
			info.Name,
			info.LabelField,
			strings.Join(info.References, ", "),
			strconv.Itoa(len(info.ReferencedBy)),
		}
	}
	output.Table([]string{"TABLE", "LABEL", "REFERENCES", "DEPENDENTS"}, rows)
	return nil
}

func runColumns(cmd *cobra.Command, tableName string) error {
	table, err := lookupTable(tableName)
	if err != nil {
		return err
	}

	b, err := sess.backend(cmd.Context())
	if err != nil {
		return err
	}
	cols, err := b.GetTableColumns(cmd.Context(), table.Name)
	if err != nil {
		return fmt.Errorf("failed to load columns of %s: %w", table.Name, err)
	}

	if jsonOutput {
		return output.JSON(cols)
	}

	output.Section("Table: " + table.Name)
	rows := make([][]string, len(cols))
	for i, c := range cols {
		rows[i] = []string{
			c.ColumnName,
			display.ColumnDisplayNameTranslated(c.ColumnName, sess.lang),
			c.DataType,
			yesNo(c.IsNullable),
			yesNo(c.IsPrimaryKey),
			defaultValue(c),
		}
	}
	output.Table([]string{"NAME", "CAPTION", "TYPE", "NULLABLE", "PK", "DEFAULT"}, rows)
	return nil
}

func defaultValue(c schema.Column) string {
	if c.DefaultValue == nil {
		return ""
	}
	return *c.DefaultValue
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// lookupTable resolves a table argument against the registry.
func lookupTable(name string) (*schema.Table, error) {
	table, err := registry.GetByName(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return nil, fmt.Errorf("%w (see 'thermos tables')", err)
	}
	return table, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
