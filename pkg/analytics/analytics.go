// Package analytics reads sensor measurements and evaluates them against the
// thresholds configured in the umbral table.
package analytics

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Measurement is one reading of a sensor metric.
type Measurement struct {
	NodoID    int64     `json:"nodoid"`
	TipoID    int64     `json:"tipoid"`
	MetricaID int64     `json:"metricaid"`
	Time      time.Time `json:"fecha"`
	Value     float64   `json:"medicion"`
}

// Query selects measurements. Zero ids and times leave that dimension open.
type Query struct {
	NodoID    int64
	TipoID    int64
	MetricaID int64
	Start     time.Time
	Stop      time.Time
	Limit     int
}

// Matches reports whether m falls inside the query.
func (q Query) Matches(m Measurement) bool {
	if q.NodoID != 0 && m.NodoID != q.NodoID {
		return false
	}
	if q.TipoID != 0 && m.TipoID != q.TipoID {
		return false
	}
	if q.MetricaID != 0 && m.MetricaID != q.MetricaID {
		return false
	}
	if !q.Start.IsZero() && m.Time.Before(q.Start) {
		return false
	}
	if !q.Stop.IsZero() && !m.Time.Before(q.Stop) {
		return false
	}
	return true
}

// Source provides measurements.
type Source interface {
	Measurements(ctx context.Context, q Query) ([]Measurement, error)
}

// Bucket aggregates the readings of one time window.
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Mean  float64   `json:"mean"`
}

// Summary aggregates a series of readings.
type Summary struct {
	Count   int          `json:"count"`
	Min     float64      `json:"min"`
	Max     float64      `json:"max"`
	Mean    float64      `json:"mean"`
	First   time.Time    `json:"first"`
	Last    *Measurement `json:"last,omitempty"`
	Buckets []Bucket     `json:"buckets,omitempty"`
}

// Summarize computes statistics over ms and, for a positive width, buckets
// aligned to multiples of width.
func Summarize(ms []Measurement, width time.Duration) Summary {
	if len(ms) == 0 {
		return Summary{}
	}

	sorted := slices.Clone(ms)
	slices.SortStableFunc(sorted, func(a, b Measurement) int {
		return a.Time.Compare(b.Time)
	})

	s := Summary{
		Count: len(sorted),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		First: sorted[0].Time,
	}

	var sum float64
	for _, m := range sorted {
		s.Min = min(s.Min, m.Value)
		s.Max = max(s.Max, m.Value)
		sum += m.Value
	}
	s.Mean = sum / float64(len(sorted))
	last := sorted[len(sorted)-1]
	s.Last = &last

	if width > 0 {
		s.Buckets = buckets(sorted, width)
	}
	return s
}

func buckets(sorted []Measurement, width time.Duration) []Bucket {
	var out []Bucket
	var sum float64

	for _, m := range sorted {
		start := m.Time.Truncate(width)
		if len(out) == 0 || !out[len(out)-1].Start.Equal(start) {
			if len(out) > 0 {
				out[len(out)-1].Mean = sum / float64(out[len(out)-1].Count)
			}
			out = append(out, Bucket{Start: start, Min: m.Value, Max: m.Value})
			sum = 0
		}
		b := &out[len(out)-1]
		b.Count++
		b.Min = min(b.Min, m.Value)
		b.Max = max(b.Max, m.Value)
		sum += m.Value
	}
	if len(out) > 0 {
		out[len(out)-1].Mean = sum / float64(out[len(out)-1].Count)
	}
	return out
}

// Threshold is an active umbral row: the allowed range of one metric of one
// sensor type on one node.
type Threshold struct {
	UmbralID     int64   `json:"umbralid"`
	Name         string  `json:"umbral"`
	NodoID       int64   `json:"nodoid"`
	TipoID       int64   `json:"tipoid"`
	MetricaID    int64   `json:"metricaid"`
	CriticidadID int64   `json:"criticidadid"`
	Minimo       float64 `json:"minimo"`
	Maximo       float64 `json:"maximo"`
}

// ParseThresholds reads the active, well-formed thresholds from umbral rows.
func ParseThresholds(rows []schema.Row) []Threshold {
	var out []Threshold
	for _, row := range rows {
		if status, ok := row.Int64(schema.ColumnStatus); ok && status != schema.StatusActive {
			continue
		}

		t := Threshold{Name: row.String("umbral")}
		var ok [6]bool
		t.UmbralID, ok[0] = row.Int64("umbralid")
		t.NodoID, ok[1] = row.Int64("nodoid")
		t.TipoID, ok[2] = row.Int64("tipoid")
		t.MetricaID, ok[3] = row.Int64("metricaid")
		t.Minimo, ok[4] = schema.ToFloat64(row["minimo"])
		t.Maximo, ok[5] = schema.ToFloat64(row["maximo"])
		if slices.Contains(ok[:], false) {
			continue
		}
		t.CriticidadID, _ = row.Int64("criticidadid")

		out = append(out, t)
	}
	return out
}

// Applies reports whether the threshold covers m.
func (t Threshold) Applies(m Measurement) bool {
	return t.NodoID == m.NodoID && t.TipoID == m.TipoID && t.MetricaID == m.MetricaID
}

// Direction tells which bound a breach crossed.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// Breach is a reading outside a threshold's range.
type Breach struct {
	Measurement Measurement `json:"measurement"`
	Threshold   Threshold   `json:"threshold"`
	Direction   Direction   `json:"direction"`
}

// Evaluate returns every reading outside the range of a threshold that
// covers it, in the order of ms.
func Evaluate(ms []Measurement, thresholds []Threshold) []Breach {
	var breaches []Breach
	for _, m := range ms {
		for _, t := range thresholds {
			if !t.Applies(m) {
				continue
			}
			switch {
			case m.Value < t.Minimo:
				breaches = append(breaches, Breach{Measurement: m, Threshold: t, Direction: Below})
			case m.Value > t.Maximo:
				breaches = append(breaches, Breach{Measurement: m, Threshold: t, Direction: Above})
			}
		}
	}
	return breaches
}
