package commands

import (
	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/tui"
)

// browseCmd opens the interactive browser
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse tables interactively",
	Long: `Open an interactive browser over the managed tables. Rows can be
inactivated and reactivated from the table view.

Examples:
  thermos browse
  thermos browse --lang en`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ops, err := sess.operations(ctx)
		if err != nil {
			return err
		}
		manager, err := sess.tables(ctx)
		if err != nil {
			return err
		}
		return tui.RunBrowseUI(ctx, manager, ops, sess.lang)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
