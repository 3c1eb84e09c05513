package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/pkg/runtime"
)

var (
	// Global flags
	configPath string
	apiURL     string
	apiToken   string
	dbURL      string
	language   string
	userID     int64
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "thermos",
	Short: "Thermos console - administration of the Thermos sensor network",
	Long: `Thermos console manages the reference tables of the Thermos agricultural
sensor network: countries, companies, farms, nodes, sensors, metrics,
thresholds, users and their profiles.

Features:
  - Client-side validation with localized messages (es, en)
  - Dependency checks before inactivating a row
  - Foreign keys shown as readable labels
  - Single, multiple and massive inserts from flags or YAML/JSON files
  - REST backend or direct PostgreSQL access
  - Sensor dashboards with threshold breaches (REST or InfluxDB)
  - Interactive table browser`,
	Version:           "0.9.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return openSession(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeSession()
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		closeSession()
		fmt.Fprintln(os.Stderr, runtime.Message(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.thermos/thermos.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Backend bearer token")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL URL, used instead of the REST backend")
	rootCmd.PersistentFlags().StringVar(&language, "lang", "", "Message language (es, en)")
	rootCmd.PersistentFlags().Int64Var(&userID, "user-id", 0, "User id stamped on created and modified rows")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}
