package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/pkg/loader"
	"github.com/thermos-iot/thermos-console/pkg/operations"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/validation"
)

var (
	// Write flags
	assignments []string
	rowsFile    string
	massive     bool
	updateID    int64
)

// insertCmd inserts rows
var insertCmd = &cobra.Command{
	Use:   "insert [table]",
	Short: "Insert rows into a table",
	Long: `Insert one row given as column=value pairs, or the rows of a YAML/JSON file.

Rows from a file are inserted one by one; a failing row does not stop the
rest. With --massive the whole file is validated first, including
duplicates within the file, and nothing is written if any row is invalid.

A file may name its table; the table argument is then optional.

Examples:
  thermos insert pais --set pais=Perú --set paisabrev=PE
  thermos insert empresa --file empresas.yaml
  thermos insert --file ./seed --massive`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInsert(cmd.Context(), firstArg(args))
	},
}

// updateCmd updates rows
var updateCmd = &cobra.Command{
	Use:   "update [table] [id]",
	Short: "Update rows of a table",
	Long: `Update one row given as column=value pairs, or the updates listed in a
YAML/JSON file. Only the given columns change; the result is validated as
the stored row with the changes applied. The primary key and creation
audit columns are never changed.

Examples:
  thermos update nodo 12 --set nodo=N-12
  thermos update --file cambios.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd.Context(), args)
	},
}

// validateCmd validates rows without writing them
var validateCmd = &cobra.Command{
	Use:   "validate [table]",
	Short: "Validate rows without writing them",
	Long: `Run the client-side checks on a row or on the rows of a file and print the
problems found. With --id the row is checked as an update of that row,
including uniqueness against the stored rows.

Examples:
  thermos validate umbral --set minimo=10 --set maximo=5
  thermos validate medio --id 3 --set nombre=SMS
  thermos validate --file usuarios.yaml --massive`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.Context(), firstArg(args))
	},
}

func init() {
	rootCmd.AddCommand(insertCmd, updateCmd, validateCmd)

	for _, c := range []*cobra.Command{insertCmd, updateCmd, validateCmd} {
		c.Flags().StringArrayVarP(&assignments, "set", "s", nil, "Column value as column=value (repeatable)")
		c.Flags().StringVarP(&rowsFile, "file", "f", "", "YAML/JSON file or directory of row files")
	}
	insertCmd.Flags().BoolVar(&massive, "massive", false, "Validate the whole file before inserting anything")
	validateCmd.Flags().BoolVar(&massive, "massive", false, "Also check duplicates within the file")
	validateCmd.Flags().Int64Var(&updateID, "id", 0, "Validate as an update of this row")
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// batches resolves the row files given with --file. Each document's table
// falls back to the table argument.
func batches(tableArg string) ([]*loader.Document, error) {
	docs, err := loader.LoadPath(rowsFile)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Table == "" {
			doc.Table = tableArg
		}
		if doc.Table == "" {
			return nil, fmt.Errorf("%s does not name a table and no table argument was given", doc.Path)
		}
		if _, err := lookupTable(doc.Table); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
	}
	return docs, nil
}

func singleRow(tableArg string) (*schema.Table, schema.Row, error) {
	if tableArg == "" {
		return nil, nil, errors.New("a table argument is required with --set")
	}
	table, err := lookupTable(tableArg)
	if err != nil {
		return nil, nil, err
	}
	if len(assignments) == 0 {
		return nil, nil, errors.New("nothing to write, use --set or --file")
	}
	row, err := loader.ParseAssignments(assignments)
	if err != nil {
		return nil, nil, err
	}
	return table, row, nil
}

func runInsert(ctx context.Context, tableArg string) error {
	ops, err := sess.operations(ctx)
	if err != nil {
		return err
	}

	if rowsFile == "" {
		table, row, err := singleRow(tableArg)
		if err != nil {
			return err
		}
		id, err := ops.InsertSingle(ctx, table.Name, row)
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(map[string]any{"table": table.Name, "id": id})
		}
		output.Success("Inserted %s %d", table.Name, id)
		return nil
	}

	docs, err := batches(tableArg)
	if err != nil {
		return err
	}

	var results []batchReport
	for _, doc := range docs {
		if len(doc.Rows) == 0 {
			continue
		}
		var res operations.BatchResult
		if massive {
			res = ops.InsertMassive(ctx, doc.Table, doc.Rows)
		} else {
			res = ops.InsertMultiple(ctx, doc.Table, doc.Rows)
		}
		results = append(results, batchReport{Path: doc.Path, Table: doc.Table, BatchResult: res})
	}
	return reportBatches(results)
}

func runUpdate(ctx context.Context, args []string) error {
	ops, err := sess.operations(ctx)
	if err != nil {
		return err
	}

	if rowsFile == "" {
		if len(args) < 2 {
			return errors.New("usage: thermos update <table> <id> --set column=value")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		table, row, err := singleRow(args[0])
		if err != nil {
			return err
		}
		if err := ops.UpdateSingle(ctx, table.Name, id, row); err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(map[string]any{"table": table.Name, "id": id})
		}
		output.Success("Updated %s %d", table.Name, id)
		return nil
	}

	docs, err := batches(firstArg(args))
	if err != nil {
		return err
	}

	var results []batchReport
	for _, doc := range docs {
		if len(doc.Updates) == 0 {
			continue
		}
		updates := make([]operations.Update, len(doc.Updates))
		for i, u := range doc.Updates {
			updates[i] = operations.Update{ID: u.ID, Row: u.Row}
		}
		results = append(results, batchReport{
			Path:        doc.Path,
			Table:       doc.Table,
			BatchResult: ops.UpdateMultiple(ctx, doc.Table, updates),
		})
	}
	return reportBatches(results)
}

type batchReport struct {
	Path  string `json:"path"`
	Table string `json:"table"`
	operations.BatchResult
}

func reportBatches(results []batchReport) error {
	if len(results) == 0 {
		return errors.New("no rows to write in the given files")
	}

	failed := 0
	for _, r := range results {
		failed += r.Failed()
	}

	if jsonOutput {
		if err := output.JSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			output.Section(fmt.Sprintf("%s (%s)", r.Table, r.Path))
			if r.Failed() == 0 {
				output.Success("%s", r.Message)
			} else {
				output.Warning("%s", r.Message)
			}
			for _, e := range r.Errors {
				output.Error("row %d: %s", e.Index, e.Message)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d rows were not written", failed)
	}
	return nil
}

func runValidate(ctx context.Context, tableArg string) error {
	ops, err := sess.operations(ctx)
	if err != nil {
		return err
	}
	v := ops.Validator()

	var results []validation.Result
	if rowsFile == "" {
		table, row, err := singleRow(tableArg)
		if err != nil {
			return err
		}
		var res validation.Result
		if updateID > 0 {
			res, err = v.ValidateUpdate(ctx, table.Name, updateID, row)
			if errors.Is(err, runtime.ErrNotFound) {
				return err
			}
			if err != nil {
				sess.logger.Warn("uniqueness not checked", "error", runtime.Message(err))
			}
		} else {
			res = v.ValidateInsert(table.Name, row)
		}
		results = append(results, res)
	} else {
		docs, err := batches(tableArg)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if len(doc.Rows) == 0 {
				continue
			}
			if massive {
				results = append(results, v.ValidateMassiveInsert(doc.Table, doc.Rows))
			} else {
				results = append(results, v.ValidateMultipleInsert(doc.Table, doc.Rows))
			}
		}
	}

	invalid := 0
	for _, res := range results {
		if !res.IsValid {
			invalid++
		}
	}

	if jsonOutput {
		if err := output.JSON(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.IsValid {
				output.Success("Valid")
				continue
			}
			output.Error("%s", res.UserFriendlyMessage)
		}
	}

	if invalid > 0 {
		return runtime.ErrInvalidRow
	}
	return nil
}
