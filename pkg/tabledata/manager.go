// Package tabledata loads the reference tables used for display and the rows
// of the table being browsed, keeping at most one table load in flight.
package tabledata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// ErrSuperseded is returned by a table load replaced by a load of another table.
var ErrSuperseded = errors.New("table load superseded")

// DefaultConcurrency bounds parallel reference-table fetches.
const DefaultConcurrency = 6

// Source provides table rows and column metadata.
type Source interface {
	GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error)
	GetTableColumns(ctx context.Context, table string) ([]schema.Column, error)
}

// State is the committed result of the latest table load.
type State struct {
	Table    string          `json:"table"`
	Columns  []schema.Column `json:"columns"`
	Rows     []schema.Row    `json:"rows"`
	Grouped  []schema.Row    `json:"grouped,omitempty"`
	LoadedAt time.Time       `json:"loadedAt"`
}

// load is one in-flight table load.
type load struct {
	table  string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the reference data snapshot and the browsed table's state.
type Manager struct {
	source      Source
	registry    *registry.Registry
	resolver    *display.Resolver
	logger      *slog.Logger
	concurrency int
	now         func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	refs       *display.ReferenceData
	state      State
	generation uint64
	loading    *load
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry uses reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithResolver sets the resolver whose cache is cleared on reference reloads
// and which renders grouped rows.
func WithResolver(r *display.Resolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConcurrency bounds parallel reference fetches.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithClock overrides time.Now for LoadedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager reading from source.
func New(source Source, opts ...Option) *Manager {
	m := &Manager{
		source:      source,
		registry:    registry.Default(),
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		m.resolver = display.NewResolver(display.WithRegistry(m.registry))
	}
	return m
}

// Resolver returns the display resolver bound to the manager.
func (m *Manager) Resolver() *display.Resolver {
	return m.resolver
}

// References returns the current reference snapshot, nil before the first load.
func (m *Manager) References() *display.ReferenceData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// State returns a snapshot of the last committed table load.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.Columns = slices.Clone(s.Columns)
	s.Rows = slices.Clone(s.Rows)
	s.Grouped = slices.Clone(s.Grouped)
	return s
}

// Loading returns the table currently being loaded, if any.
func (m *Manager) Loading() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loading == nil {
		return "", false
	}
	return m.loading.table, true
}

// LoadRelatedTablesData fetches every registered table, up to
// schema.DefaultReferenceRows rows each, and publishes them as a new
// reference snapshot. A table that fails to load is published empty; the
// failures are returned joined.
func (m *Manager) LoadRelatedTablesData(ctx context.Context) error {
	names := m.registry.AllNames()
	results := make([][]schema.Row, len(names))

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, name := range names {
		g.Go(func() error {
			rows, err := m.source.GetTableData(ctx, name, schema.DefaultReferenceRows)
			if err != nil {
				m.logger.Warn("failed to load reference table", "table", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				rows = []schema.Row{}
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	tables := make(map[string][]schema.Row, len(names))
	for i, name := range names {
		tables[name] = results[i]
	}

	m.resolver.Clear()
	refs := display.NewReferenceData(tables)

	m.mu.Lock()
	m.refs = refs
	m.mu.Unlock()

	m.logger.Debug("reference data loaded", "tables", len(names), "failed", len(errs), "version", refs.Version())

	return errors.Join(errs...)
}

// LoadTableData loads the columns and rows of table and commits them as the
// manager's state.
//
// Concurrent calls for the table being loaded join that load. A call for a
// different table cancels the in-flight load, which then returns
// ErrSuperseded and never commits. The load runs under the context of the
// call that started it; a load whose context is already cancelled is never
// joined.
func (m *Manager) LoadTableData(ctx context.Context, table string) (State, error) {
	if !m.registry.HasTable(table) {
		return State{}, fmt.Errorf("%w: %s", runtime.ErrUnknownTable, table)
	}

	m.mu.Lock()
	l := m.loading
	if l == nil || l.table != table || l.ctx.Err() != nil {
		if l != nil && l.table != table {
			m.logger.Debug("superseding table load", "table", l.table, "by", table)
			l.cancel()
		}
		m.generation++
		lctx, cancel := context.WithCancel(ctx)
		l = &load{table: table, gen: m.generation, ctx: lctx, cancel: cancel}
		m.loading = l
	}
	// Joining under mu: run clears m.loading under mu before it returns, so
	// while l is still current its singleflight call is still in flight.
	ch := m.group.DoChan(fmt.Sprintf("%s#%d", l.table, l.gen), func() (any, error) {
		return m.run(l)
	})
	m.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return State{}, res.Err
		}
		return res.Val.(State), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (m *Manager) run(l *load) (State, error) {
	defer func() {
		m.mu.Lock()
		if m.loading == l {
			m.loading = nil
		}
		m.mu.Unlock()
		l.cancel()
	}()

	var (
		columns []schema.Column
		rows    []schema.Row
	)

	g, gctx := errgroup.WithContext(l.ctx)
	g.Go(func() error {
		var err error
		columns, err = m.source.GetTableColumns(gctx, l.table)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = m.source.GetTableData(gctx, l.table, schema.DefaultTableRows)
		return err
	})
	err := g.Wait()

	if m.superseded(l) {
		return State{}, ErrSuperseded
	}
	if err != nil {
		if ctxErr := l.ctx.Err(); ctxErr != nil {
			return State{}, ctxErr
		}
		return State{}, fmt.Errorf("failed to load %s: %w", l.table, err)
	}

	SortRows(rows)

	columns = append(columns, VirtualColumns(l.table)...)
	state := State{
		Table:    l.table,
		Columns:  columns,
		Rows:     rows,
		Grouped:  GroupRows(l.table, rows, m.resolver, m.References()),
		LoadedAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l.gen != m.generation {
		return State{}, ErrSuperseded
	}
	if err := l.ctx.Err(); err != nil {
		return State{}, err
	}

	m.state = state
	m.logger.Debug("table loaded", "table", l.table, "rows", len(rows), "columns", len(columns))

	return state, nil
}

func (m *Manager) superseded(l *load) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return l.gen != m.generation
}

// SortRows orders rows newest first by datemodified, falling back to
// datecreated. Undated rows keep their relative order at the end.
func SortRows(rows []schema.Row) {
	slices.SortStableFunc(rows, func(a, b schema.Row) int {
		ta, okA := rowTime(a)
		tb, okB := rowTime(b)
		switch {
		case okA && okB:
			return tb.Compare(ta)
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
}

func rowTime(row schema.Row) (time.Time, bool) {
	if t, ok := row.Time(schema.ColumnDateModified); ok {
		return t, true
	}
	return row.Time(schema.ColumnDateCreated)
}
