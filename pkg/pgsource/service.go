// Package pgsource serves the console's table contract straight from
// PostgreSQL, for operators with database access and no REST backend.
package pgsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Service reads and writes registered tables through a runtime.DB.
type Service struct {
	db       *runtime.DB
	registry *registry.Registry
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry accepts only the tables of reg.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service over db.
func New(db *runtime.DB, opts ...Option) *Service {
	s := &Service{
		db:       db,
		registry: registry.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) checkTable(table string) error {
	if !s.registry.HasTable(table) {
		return fmt.Errorf("%w: %s", runtime.ErrUnknownTable, table)
	}
	return nil
}

// GetTableData returns up to limit rows of table, newest first. A
// non-positive limit returns every row.
func (s *Service) GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error) {
	return s.GetRowsWhere(ctx, table, nil, limit)
}

// GetRows mirrors the REST list endpoint: "limit" caps the rows and every
// other parameter filters a column by its text form.
func (s *Service) GetRows(ctx context.Context, table string, params url.Values) ([]schema.Row, error) {
	filters, limit, err := whereParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	return s.GetRowsWhere(ctx, table, filters, limit)
}

func whereParams(params url.Values) (map[string]any, int, error) {
	var (
		filters map[string]any
		limit   int
	)
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		if key == "limit" {
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return nil, 0, fmt.Errorf("limit must be a number: %q", values[0])
			}
			limit = n
			continue
		}
		if filters == nil {
			filters = make(map[string]any)
		}
		filters[key] = values[0]
	}
	return filters, limit, nil
}

// GetRowsWhere returns rows of table matching every filter by equality.
// String filters compare against the column's text form.
func (s *Service) GetRowsWhere(ctx context.Context, table string, filters map[string]any, limit int) ([]schema.Row, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	sql, args := selectSQL(s.db.Schema(), table, filters, limit)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	out := make([]schema.Row, len(records))
	for i, m := range records {
		out[i] = normalizeRow(m)
	}

	s.logger.Debug("rows loaded", "table", table, "rows", len(out))
	return out, nil
}

// GetTableColumns reads column metadata from information_schema.
func (s *Service) GetTableColumns(ctx context.Context, table string) ([]schema.Column, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, columnsSQL, s.db.Schema(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns of %s: %w", table, err)
	}

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (schema.Column, error) {
		var c schema.Column
		err := row.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.DefaultValue, &c.IsIdentity, &c.IsPrimaryKey)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan columns of %s: %w", table, err)
	}
	return columns, nil
}

// InsertTableRow inserts row and returns its primary key.
func (s *Service) InsertTableRow(ctx context.Context, table string, row schema.Row) (int64, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}

	sql, args, err := insertSQL(s.db.Schema(), table, row)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	var id int64
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, &runtime.QueryError{Query: sql, Err: err})
	}
	return id, nil
}

// UpdateTableRow sets the columns of row on the record with id.
func (s *Service) UpdateTableRow(ctx context.Context, table string, id int64, row schema.Row) error {
	if err := s.checkTable(table); err != nil {
		return err
	}

	sql, args, err := updateSQL(s.db.Schema(), table, id, row)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", table, id, err)
	}

	n, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, runtime.ErrNotFound)
	}
	return nil
}

// DeleteTableRow sets the row's statusid to inactive. Rows are never removed.
func (s *Service) DeleteTableRow(ctx context.Context, table string, id int64) error {
	if err := s.checkTable(table); err != nil {
		return err
	}

	sql, args := inactivateSQL(s.db.Schema(), table, id)
	n, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to inactivate %s %d: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, runtime.ErrNotFound)
	}
	return nil
}

// normalizeRow converts pgx's decoded values into the shapes the rest of
// the console handles: numerics become float64, uuids become strings.
func normalizeRow(m map[string]any) schema.Row {
	row := make(schema.Row, len(m))
	for k, v := range m {
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	}
	return v
}

// argValue converts values decoded from JSON or YAML into types pgx encodes
// natively.
func argValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
