package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
)

// DefaultMeasurementName is the Influx measurement holding sensor readings.
const DefaultMeasurementName = "medicion"

// InfluxSource reads measurements from InfluxDB. Readings are points of the
// measurement tagged nodoid, tipoid and metricaid with a numeric _value.
type InfluxSource struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
}

// NewInfluxSource creates an InfluxSource querying bucket in org.
func NewInfluxSource(client influxdb2.Client, org, bucket string) *InfluxSource {
	return &InfluxSource{
		client:      client,
		org:         org,
		bucket:      bucket,
		measurement: DefaultMeasurementName,
	}
}

// Measurements implements Source.
func (s *InfluxSource) Measurements(ctx context.Context, q Query) ([]Measurement, error) {
	flux := fluxQuery(s.bucket, s.measurement, q)

	result, err := s.client.QueryAPI(s.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("InfluxDB query failed: %w", err)
	}
	defer result.Close()

	var out []Measurement
	for result.Next() {
		if m, ok := measurementFromRecord(result.Record()); ok {
			out = append(out, m)
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error reading InfluxDB results: %w", result.Err())
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func measurementFromRecord(record *query.FluxRecord) (Measurement, bool) {
	m := Measurement{Time: record.Time()}

	switch v := record.Value().(type) {
	case float64:
		m.Value = v
	case int64:
		m.Value = float64(v)
	case uint64:
		m.Value = float64(v)
	default:
		return m, false
	}

	m.NodoID = tagID(record, "nodoid")
	m.TipoID = tagID(record, "tipoid")
	m.MetricaID = tagID(record, "metricaid")
	return m, true
}

func tagID(record *query.FluxRecord, tag string) int64 {
	s, _ := record.ValueByKey(tag).(string)
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

// fluxQuery builds the Flux program for q. Ids are formatted as integers so
// no caller input reaches the program text unescaped.
func fluxQuery(bucket, measurement string, q Query) string {
	start := "0"
	if !q.Start.IsZero() {
		start = q.Start.UTC().Format(time.RFC3339)
	}
	stop := "now()"
	if !q.Stop.IsZero() {
		stop = q.Stop.UTC().Format(time.RFC3339)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", strconv.Quote(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", start, stop)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s)\n", strconv.Quote(measurement))
	for _, f := range []struct {
		tag string
		id  int64
	}{
		{"nodoid", q.NodoID},
		{"tipoid", q.TipoID},
		{"metricaid", q.MetricaID},
	} {
		if f.id != 0 {
			fmt.Fprintf(&b, "  |> filter(fn: (r) => r.%s == \"%d\")\n", f.tag, f.id)
		}
	}
	b.WriteString("  |> group()\n")
	b.WriteString(`  |> sort(columns: ["_time"], desc: false)`)
	return b.String()
}
