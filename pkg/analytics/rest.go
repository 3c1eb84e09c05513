package analytics

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// MeasurementTable is the backend resource holding sensor readings.
const MeasurementTable = "mediciones"

// RowGetter fetches rows of a backend resource with query parameters.
type RowGetter interface {
	GetRows(ctx context.Context, table string, params url.Values) ([]schema.Row, error)
}

// RESTSource reads measurements from the backend's mediciones resource.
// Node, type and metric filters are sent to the backend; the time range and
// limit are applied locally, keeping the latest readings in time order.
type RESTSource struct {
	rows RowGetter
}

// NewRESTSource creates a RESTSource reading through rows.
func NewRESTSource(rows RowGetter) *RESTSource {
	return &RESTSource{rows: rows}
}

// Measurements implements Source.
func (s *RESTSource) Measurements(ctx context.Context, q Query) ([]Measurement, error) {
	params := url.Values{}
	if q.NodoID != 0 {
		params.Set("nodoid", strconv.FormatInt(q.NodoID, 10))
	}
	if q.TipoID != 0 {
		params.Set("tipoid", strconv.FormatInt(q.TipoID, 10))
	}
	if q.MetricaID != 0 {
		params.Set("metricaid", strconv.FormatInt(q.MetricaID, 10))
	}

	rows, err := s.rows.GetRows(ctx, MeasurementTable, params)
	if err != nil {
		return nil, fmt.Errorf("failed to load measurements: %w", err)
	}

	var out []Measurement
	for _, row := range rows {
		m, ok := measurementFromRow(row)
		if !ok || !q.Matches(m) {
			continue
		}
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b Measurement) int {
		return a.Time.Compare(b.Time)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func measurementFromRow(row schema.Row) (Measurement, bool) {
	var m Measurement
	var ok bool

	if m.Time, ok = row.Time("fecha"); !ok {
		return m, false
	}
	if m.Value, ok = schema.ToFloat64(row["medicion"]); !ok {
		return m, false
	}
	m.NodoID, _ = row.Int64("nodoid")
	m.TipoID, _ = row.Int64("tipoid")
	m.MetricaID, _ = row.Int64("metricaid")
	return m, true
}
