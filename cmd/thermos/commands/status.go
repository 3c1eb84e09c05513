package commands

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/pkg/dependency"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
)

// depsCmd lists the rows that reference a row
var depsCmd = &cobra.Command{
	Use:   "deps <table> <id>",
	Short: "Show which tables reference a row",
	Long: `Count, per referencing table, the rows whose foreign key points at a row.
A row with dependents cannot be inactivated.

Examples:
  thermos deps pais 1
  thermos deps nodo 12 --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeps(cmd.Context(), args[0], args[1])
	},
}

// inactivateCmd inactivates a row
var inactivateCmd = &cobra.Command{
	Use:   "inactivate <table> <id>",
	Short: "Inactivate a row",
	Long: `Set a row's status to inactive. Rows referenced by other rows are refused;
inactivate the dependents first.

Examples:
  thermos inactivate medio 3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetStatus(cmd.Context(), args[0], args[1], false)
	},
}

// activateCmd reactivates a row
var activateCmd = &cobra.Command{
	Use:   "activate <table> <id>",
	Short: "Reactivate a row",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetStatus(cmd.Context(), args[0], args[1], true)
	},
}

func init() {
	rootCmd.AddCommand(depsCmd, inactivateCmd, activateCmd)
}

func runDeps(ctx context.Context, tableArg, idArg string) error {
	table, err := lookupTable(tableArg)
	if err != nil {
		return err
	}
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	ops, err := sess.operations(ctx)
	if err != nil {
		return err
	}
	deps, err := ops.Checker().Dependents(ctx, table.Name, id)
	if err != nil {
		output.Warning("Some tables could not be checked: %s", runtime.Message(err))
	}
	if deps == nil {
		deps = []dependency.Dependent{}
	}

	if jsonOutput {
		return output.JSON(deps)
	}

	if len(deps) == 0 {
		output.Success("No rows reference %s %d", table.Name, id)
		return nil
	}

	rows := make([][]string, len(deps))
	for i, d := range deps {
		rows[i] = []string{d.Table, d.Column, strconv.Itoa(d.Count)}
	}
	output.Section("Rows referencing " + table.Name + " " + strconv.FormatInt(id, 10))
	output.Table([]string{"TABLE", "COLUMN", "ROWS"}, rows)
	return nil
}

func runSetStatus(ctx context.Context, tableArg, idArg string, active bool) error {
	table, err := lookupTable(tableArg)
	if err != nil {
		return err
	}
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	ops, err := sess.operations(ctx)
	if err != nil {
		return err
	}

	if active {
		if err := ops.Activate(ctx, table.Name, id); err != nil {
			return err
		}
		output.Success("Activated %s %d", table.Name, id)
		return nil
	}

	err = ops.Inactivate(ctx, table.Name, id)
	var depErr *runtime.DependencyError
	if errors.As(err, &depErr) {
		output.Error("%s %d is still referenced by: %v", table.Name, id, depErr.Tables)
		return err
	}
	if err != nil {
		return err
	}
	output.Success("Inactivated %s %d", table.Name, id)
	return nil
}
