package tabledata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

type fakeSource struct {
	mu      sync.Mutex
	rows    map[string][]schema.Row
	fail    map[string]error
	block   map[string]chan struct{}
	calls   map[string]int
	limits  map[string]int
	started chan string

	// ignoreCtx makes blocked fetches wait for release even after cancellation
	ignoreCtx bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rows:    make(map[string][]schema.Row),
		fail:    make(map[string]error),
		block:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
		limits:  make(map[string]int),
		started: make(chan string, 64),
	}
}

func (f *fakeSource) GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error) {
	f.mu.Lock()
	f.calls[table]++
	f.limits[table] = limit
	release := f.block[table]
	err := f.fail[table]
	rows := f.rows[table]
	f.mu.Unlock()

	f.started <- table

	if release != nil {
		if f.ignoreCtx {
			<-release
		} else {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeSource) GetTableColumns(_ context.Context, table string) ([]schema.Column, error) {
	return []schema.Column{
		{ColumnName: table + schema.PrimaryKeySuffix, DataType: "integer", IsPrimaryKey: true},
		{ColumnName: schema.ColumnStatus, DataType: "integer"},
	}, nil
}

func (f *fakeSource) callCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[table]
}

func waitStarted(t *testing.T, f *fakeSource, table string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == table {
				return
			}
		case <-timeout:
			t.Fatalf("load of %s never started", table)
		}
	}
}

func TestLoadTableData(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableNodo] = []schema.Row{
		{"nodoid": 1, "nodo": "old", "datecreated": "2026-01-01T00:00:00Z"},
		{"nodoid": 2, "nodo": "undated"},
		{"nodoid": 3, "nodo": "edited", "datecreated": "2025-01-01T00:00:00Z", "datemodified": "2026-05-01T00:00:00Z"},
		{"nodoid": 4, "nodo": "new", "datecreated": "2026-03-01T00:00:00Z"},
	}
	loadedAt := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	m := New(src, WithClock(func() time.Time { return loadedAt }))

	state, err := m.LoadTableData(context.Background(), schema.TableNodo)
	require.NoError(t, err)

	assert.Equal(t, schema.TableNodo, state.Table)
	assert.Equal(t, loadedAt, state.LoadedAt)
	assert.Len(t, state.Columns, 2)
	assert.Nil(t, state.Grouped)

	var order []string
	for _, row := range state.Rows {
		order = append(order, row.String("nodo"))
	}
	assert.Equal(t, []string{"edited", "new", "old", "undated"}, order)
	assert.Equal(t, schema.DefaultTableRows, src.limits[schema.TableNodo])

	assert.Equal(t, state.Rows, m.State().Rows)
	_, loading := m.Loading()
	assert.False(t, loading)
}

func TestLoadTableData_UnknownTable(t *testing.T) {
	_, err := New(newFakeSource()).LoadTableData(context.Background(), "cosecha")
	assert.ErrorIs(t, err, runtime.ErrUnknownTable)
}

func TestLoadTableData_Error(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("backend down")
	src.fail[schema.TableNodo] = boom
	m := New(src)

	_, err := m.LoadTableData(context.Background(), schema.TableNodo)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, m.State().Table)
}

func TestLoadTableData_SupersededByOtherTable(t *testing.T) {
	for _, ignoreCtx := range []bool{false, true} {
		name := "source honours cancellation"
		if ignoreCtx {
			name = "source ignores cancellation"
		}
		t.Run(name, func(t *testing.T) {
			src := newFakeSource()
			src.ignoreCtx = ignoreCtx
			src.rows[schema.TableSensor] = []schema.Row{{"sensorid": 1, "nodoid": 1, "tipoid": 1}}
			src.rows[schema.TableNodo] = []schema.Row{{"nodoid": 1, "nodo": "N-001"}}
			release := make(chan struct{})
			src.block[schema.TableSensor] = release
			m := New(src)

			sensorErr := make(chan error, 1)
			go func() {
				_, err := m.LoadTableData(context.Background(), schema.TableSensor)
				sensorErr <- err
			}()
			waitStarted(t, src, schema.TableSensor)

			state, err := m.LoadTableData(context.Background(), schema.TableNodo)
			require.NoError(t, err)
			assert.Equal(t, schema.TableNodo, state.Table)

			close(release)
			assert.ErrorIs(t, <-sensorErr, ErrSuperseded)

			final := m.State()
			assert.Equal(t, schema.TableNodo, final.Table)
			require.Len(t, final.Rows, 1)
			assert.Equal(t, "N-001", final.Rows[0].String("nodo"))
			assert.Nil(t, final.Grouped)
		})
	}
}

func TestLoadTableData_JoinsInFlightLoad(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableNodo] = []schema.Row{{"nodoid": 1}}
	release := make(chan struct{})
	src.block[schema.TableNodo] = release
	m := New(src)

	var wg sync.WaitGroup
	results := make([]State, 2)
	errs := make([]error, 2)
	start := func(i int) {
		defer wg.Done()
		results[i], errs[i] = m.LoadTableData(context.Background(), schema.TableNodo)
	}

	wg.Add(1)
	go start(0)
	waitStarted(t, src, schema.TableNodo)

	table, loading := m.Loading()
	assert.True(t, loading)
	assert.Equal(t, schema.TableNodo, table)

	wg.Add(1)
	go start(1)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Rows, results[1].Rows)
	assert.Equal(t, 1, src.callCount(schema.TableNodo))
}

func TestLoadTableData_CallerCancelled(t *testing.T) {
	src := newFakeSource()
	src.block[schema.TableNodo] = make(chan struct{})
	m := New(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.LoadTableData(ctx, schema.TableNodo)
		done <- err
	}()
	waitStarted(t, src, schema.TableNodo)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, m.State().Table)
}

func TestLoadTableData_AfterCancelledLoad(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableNodo] = []schema.Row{{"nodoid": 1}}
	release := make(chan struct{})
	src.block[schema.TableNodo] = release
	src.ignoreCtx = true
	m := New(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.LoadTableData(ctx, schema.TableNodo)
		done <- err
	}()
	waitStarted(t, src, schema.TableNodo)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The cancelled fetch is still blocked, so its load is still registered.
	src.mu.Lock()
	delete(src.block, schema.TableNodo)
	src.mu.Unlock()

	state, err := m.LoadTableData(context.Background(), schema.TableNodo)
	close(release)
	require.NoError(t, err)
	assert.Len(t, state.Rows, 1)
	assert.Equal(t, 2, src.callCount(schema.TableNodo))
}

func TestLoadTableData_ConcurrentSameTable(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableNodo] = []schema.Row{{"nodoid": 1}}
	src.started = make(chan string, 1024)
	m := New(src)

	for range 50 {
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.LoadTableData(context.Background(), schema.TableNodo)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}
}

func TestLoadTableData_GroupedTable(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableTipo] = []schema.Row{
		{"tipoid": 1, "tipo": "Temperatura"},
		{"tipoid": 2, "tipo": "Humedad"},
	}
	src.rows[schema.TableSensor] = []schema.Row{
		{"sensorid": 1, "nodoid": 10, "tipoid": 1, "statusid": 1},
		{"sensorid": 2, "nodoid": 10, "tipoid": 2, "statusid": 0},
		{"sensorid": 3, "nodoid": 11, "tipoid": 1, "statusid": 0},
	}
	m := New(src)
	ctx := context.Background()

	require.NoError(t, m.LoadRelatedTablesData(ctx))
	state, err := m.LoadTableData(ctx, schema.TableSensor)
	require.NoError(t, err)

	require.Len(t, state.Columns, 3)
	assert.True(t, state.Columns[2].Virtual)
	assert.Equal(t, "tipos", state.Columns[2].ColumnName)

	require.Len(t, state.Grouped, 2)
	first := state.Grouped[0]
	assert.Equal(t, "Temperatura, Humedad", first["tipos"])
	assert.Equal(t, []int64{1, 2}, first["ids"])
	assert.Equal(t, schema.StatusActive, first[schema.ColumnStatus])
	assert.Equal(t, schema.StatusInactive, state.Grouped[1][schema.ColumnStatus])
}

func TestLoadRelatedTablesData(t *testing.T) {
	src := newFakeSource()
	src.rows[schema.TableFundo] = []schema.Row{{"fundoid": 5, "fundo": "Fundo X"}}
	boom := errors.New("forbidden")
	src.fail[schema.TableUsuario] = boom

	resolver := display.NewResolver()
	m := New(src, WithResolver(resolver))

	err := m.LoadRelatedTablesData(context.Background())
	assert.ErrorIs(t, err, boom)

	refs := m.References()
	require.NotNil(t, refs)
	assert.Equal(t, len(schema.Catalog()), refs.Len())
	assert.NotNil(t, refs.Rows(schema.TableUsuario))
	assert.Empty(t, refs.Rows(schema.TableUsuario))
	assert.Equal(t, schema.DefaultReferenceRows, src.limits[schema.TableFundo])

	assert.Equal(t, "Fundo X", resolver.DisplayValue(schema.Row{"fundoid": 5}, "fundoid", refs))

	// A reload publishes a newer snapshot with fresh labels
	src.mu.Lock()
	src.rows[schema.TableFundo] = []schema.Row{{"fundoid": 5, "fundo": "Fundo Y"}}
	src.mu.Unlock()
	_ = m.LoadRelatedTablesData(context.Background())

	newer := m.References()
	assert.Greater(t, newer.Version(), refs.Version())
	assert.Equal(t, "Fundo Y", resolver.DisplayValue(schema.Row{"fundoid": 5}, "fundoid", newer))
}

func TestSortRows_UndatedKeepOrder(t *testing.T) {
	rows := []schema.Row{
		{"id": "a"},
		{"id": "b", "datecreated": "2026-01-01 10:00:00"},
		{"id": "c"},
	}

	SortRows(rows)

	assert.Equal(t, "b", rows[0]["id"])
	assert.Equal(t, "a", rows[1]["id"])
	assert.Equal(t, "c", rows[2]["id"])
}

func TestVirtualColumns(t *testing.T) {
	names := func(table string) []string {
		var out []string
		for _, c := range VirtualColumns(table) {
			out = append(out, c.ColumnName)
		}
		return out
	}

	assert.Equal(t, []string{"tipos"}, names(schema.TableSensor))
	assert.Equal(t, []string{"tipos", "metricas"}, names(schema.TableMetricaSensor))
	assert.Equal(t, []string{"usuario", "perfiles"}, names(schema.TableUsuarioPerfil))
	assert.Nil(t, VirtualColumns(schema.TableNodo))
	assert.True(t, IsGrouped(schema.TableSensor))
	assert.False(t, IsGrouped(schema.TablePais))
}
