package commands

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/pkg/analytics"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

var (
	// Dashboard flags
	dashNodo    int64
	dashTipo    int64
	dashMetrica int64
	dashSince   time.Duration
	dashBucket  time.Duration
)

// dashboardCmd summarizes recent measurements
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarize recent measurements and threshold breaches",
	Long: `Summarize the measurements of the last --since window per node, sensor
type and metric, and list the readings outside the active thresholds.

Measurements come from InfluxDB when influx.url is configured, else from
the backend's mediciones resource.

Examples:
  thermos dashboard --nodo 12
  thermos dashboard --nodo 12 --metrica 3 --since 6h --bucket 30m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDashboard(cmd.Context(), time.Now())
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().Int64Var(&dashNodo, "nodo", 0, "Node id")
	dashboardCmd.Flags().Int64Var(&dashTipo, "tipo", 0, "Sensor type id")
	dashboardCmd.Flags().Int64Var(&dashMetrica, "metrica", 0, "Metric id")
	dashboardCmd.Flags().DurationVar(&dashSince, "since", 24*time.Hour, "Window to summarize")
	dashboardCmd.Flags().DurationVar(&dashBucket, "bucket", time.Hour, "Bucket width (0 disables buckets)")
}

type series struct {
	NodoID    int64             `json:"nodoid"`
	TipoID    int64             `json:"tipoid"`
	MetricaID int64             `json:"metricaid"`
	Summary   analytics.Summary `json:"summary"`
}

type dashboard struct {
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Series   []series           `json:"series"`
	Breaches []analytics.Breach `json:"breaches"`
}

func runDashboard(ctx context.Context, now time.Time) error {
	if dashSince <= 0 {
		return fmt.Errorf("--since must be positive")
	}

	source, err := sess.measurements()
	if err != nil {
		return err
	}

	q := analytics.Query{
		NodoID:    dashNodo,
		TipoID:    dashTipo,
		MetricaID: dashMetrica,
		Start:     now.Add(-dashSince),
		Stop:      now,
	}
	ms, err := source.Measurements(ctx, q)
	if err != nil {
		return err
	}

	b, err := sess.backend(ctx)
	if err != nil {
		return err
	}
	umbrales, err := b.GetTableData(ctx, schema.TableUmbral, 0)
	if err != nil {
		sess.logger.Warn("thresholds not loaded", slog.String("error", err.Error()))
	}

	d := dashboard{
		From:     q.Start,
		To:       q.Stop,
		Series:   summarizeSeries(ms, dashBucket),
		Breaches: analytics.Evaluate(ms, analytics.ParseThresholds(umbrales)),
	}

	if jsonOutput {
		return output.JSON(d)
	}
	return printDashboard(ctx, d)
}

func summarizeSeries(ms []analytics.Measurement, bucket time.Duration) []series {
	type key struct{ nodo, tipo, metrica int64 }
	groups := make(map[key][]analytics.Measurement)
	for _, m := range ms {
		k := key{m.NodoID, m.TipoID, m.MetricaID}
		groups[k] = append(groups[k], m)
	}

	out := make([]series, 0, len(groups))
	for k, group := range groups {
		out = append(out, series{
			NodoID:    k.nodo,
			TipoID:    k.tipo,
			MetricaID: k.metrica,
			Summary:   analytics.Summarize(group, bucket),
		})
	}
	slices.SortFunc(out, func(a, b series) int {
		return cmp.Or(
			cmp.Compare(a.NodoID, b.NodoID),
			cmp.Compare(a.TipoID, b.TipoID),
			cmp.Compare(a.MetricaID, b.MetricaID),
		)
	})
	return out
}

func printDashboard(ctx context.Context, d dashboard) error {
	manager, err := sess.loadedTables(ctx)
	if err != nil {
		return err
	}
	resolver, refs := manager.Resolver(), manager.References()
	label := func(table string, id int64) string {
		if l, ok := resolver.Label(table, id, refs); ok {
			return l
		}
		return strconv.FormatInt(id, 10)
	}

	output.Section(fmt.Sprintf("Measurements %s - %s",
		d.From.Local().Format(time.DateTime), d.To.Local().Format(time.DateTime)))
	if len(d.Series) == 0 {
		output.Warning("No measurements in the window")
		return nil
	}

	rows := make([][]string, len(d.Series))
	for i, s := range d.Series {
		last := ""
		if s.Summary.Last != nil {
			last = formatFloat(s.Summary.Last.Value)
		}
		rows[i] = []string{
			label(schema.TableNodo, s.NodoID),
			label(schema.TableTipo, s.TipoID),
			label(schema.TableMetrica, s.MetricaID),
			strconv.Itoa(s.Summary.Count),
			formatFloat(s.Summary.Min),
			formatFloat(s.Summary.Mean),
			formatFloat(s.Summary.Max),
			last,
		}
	}
	output.Table([]string{"NODE", "TYPE", "METRIC", "N", "MIN", "MEAN", "MAX", "LAST"}, rows)

	if len(d.Breaches) == 0 {
		output.Success("No threshold breaches")
		return nil
	}

	output.Section(fmt.Sprintf("Threshold breaches (%d)", len(d.Breaches)))
	rows = make([][]string, len(d.Breaches))
	for i, br := range d.Breaches {
		rows[i] = []string{
			resolver.DisplayValue(schema.Row{schema.ColumnDateCreated: br.Measurement.Time}, schema.ColumnDateCreated, refs),
			label(schema.TableNodo, br.Measurement.NodoID),
			label(schema.TableMetrica, br.Measurement.MetricaID),
			formatFloat(br.Measurement.Value),
			fmt.Sprintf("%s - %s", formatFloat(br.Threshold.Minimo), formatFloat(br.Threshold.Maximo)),
			string(br.Direction),
			label(schema.TableCriticidad, br.Threshold.CriticidadID),
		}
	}
	output.Table([]string{"TIME", "NODE", "METRIC", "VALUE", "RANGE", "", "CRITICALITY"}, rows)
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
