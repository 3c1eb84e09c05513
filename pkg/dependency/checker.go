// Package dependency decides whether a row can be inactivated by looking for
// active references to it in the tables that hold a foreign key to its table.
//
// The check is advisory. It is not transactional with the status change that
// follows it, so a reference created between the check and the change goes
// unnoticed.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// maxFetches bounds concurrent dependent-table fetches for one check.
const maxFetches = 4

// RowFetcher loads the rows of a table.
type RowFetcher interface {
	GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error)
}

// Dependent is a table holding rows that reference the checked row.
type Dependent struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// Checker looks up dependents through the registry's reverse foreign-key index.
type Checker struct {
	registry *registry.Registry
	rows     RowFetcher
	logger   *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithRegistry checks against reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Checker) {
		if reg != nil {
			c.registry = reg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Checker that fetches dependent tables through rows.
func New(rows RowFetcher, opts ...Option) *Checker {
	c := &Checker{
		registry: registry.Default(),
		rows:     rows,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckDependencies reports whether any dependent table holds an active row
// whose foreign key equals id. Fetch failures count as "no dependency" and are
// logged; the check fails open.
func (c *Checker) CheckDependencies(ctx context.Context, table string, id int64) bool {
	deps, err := c.Dependents(ctx, table, id)
	if err != nil {
		c.logger.Warn("dependency check incomplete, allowing operation",
			"table", table, "id", id, "error", err)
	}
	return len(deps) > 0
}

// Dependents lists the dependent tables whose active rows reference id, with
// the number of matching rows. Each dependent table is fetched in full, concurrently.
// Tables that could not be fetched are skipped and their errors returned
// joined alongside the dependents that were found.
func (c *Checker) Dependents(ctx context.Context, table string, id int64) ([]Dependent, error) {
	refs := c.registry.Dependents(table)
	if len(refs) == 0 {
		return nil, nil
	}

	counts := make([]int, len(refs))

	var (
		mu   sync.Mutex
		errs []error
	)

	// Goroutines never return an error so one failed fetch does not cancel the rest
	var g errgroup.Group
	g.SetLimit(maxFetches)
	for i, ref := range refs {
		g.Go(func() error {
			rows, err := c.rows.GetTableData(ctx, ref.Table, 0)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s.%s: %w", ref.Table, ref.Column, err))
				mu.Unlock()
				return nil
			}
			counts[i] = countReferences(rows, ref.Column, id)
			return nil
		})
	}
	_ = g.Wait()

	var deps []Dependent
	for i, ref := range refs {
		if counts[i] > 0 {
			deps = append(deps, Dependent{Table: ref.Table, Column: ref.Column, Count: counts[i]})
		}
	}

	c.logger.Debug("dependency check", "table", table, "id", id, "dependents", len(deps), "failed", len(errs))

	return deps, errors.Join(errs...)
}

// countReferences counts the rows whose column equals id. Inactive rows do
// not count; rows without a status are treated as active.
func countReferences(rows []schema.Row, column string, id int64) int {
	n := 0
	for _, row := range rows {
		if status, ok := row.Int64(schema.ColumnStatus); ok && status == schema.StatusInactive {
			continue
		}
		if ref, ok := row.Int64(column); ok && ref == id {
			n++
		}
	}
	return n
}
