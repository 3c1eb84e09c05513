package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermos-iot/thermos-console/cmd/thermos/output"
	"github.com/thermos-iot/thermos-console/internal/fakebackend"
	"github.com/thermos-iot/thermos-console/pkg/client"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// resetFlags restores every flag to its default so runs do not leak into
// each other through the package-level flag variables.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type harness struct {
	t       *testing.T
	backend *fakebackend.Backend
	url     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("THERMOS_CONFIG", "")
	t.Setenv("THERMOS_API_RATE_LIMIT", "1000")

	backend := fakebackend.New(client.DefaultPrefix)
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	return &harness{t: t, backend: backend, url: server.URL}
}

// run executes the CLI against the fake backend and returns what it printed.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()

	resetFlags(rootCmd)
	var buf bytes.Buffer
	output.Out = &buf
	h.t.Cleanup(func() { output.Out = os.Stdout })

	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--api", h.url, "--lang", "en", "--user-id", "5"}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	closeSession()
	return buf.String(), err
}

func (h *harness) posts() int {
	n := 0
	for _, r := range h.backend.Requests() {
		if r.Method == http.MethodPost {
			n++
		}
	}
	return n
}

func TestTablesCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("tables", "--json")
	require.NoError(t, err)

	var infos []tableInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 19)
	assert.Equal(t, "contacto", infos[0].Name, "sorted by name")
	for _, info := range infos {
		if info.Name == schema.TablePais {
			assert.Contains(t, info.ReferencedBy, "empresa.paisid")
		}
	}
	assert.Empty(t, h.backend.Requests(), "listing tables needs no backend")

	out, err = h.run("tables")
	require.NoError(t, err)
	assert.Contains(t, out, "umbral")
}

func TestInsertCommand_Single(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("insert", "pais", "--set", "pais=Perú", "--set", "paisabrev=PE")
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted pais 1")

	rows := h.backend.Rows(schema.TablePais)
	require.Len(t, rows, 1)
	assert.Equal(t, "PE", rows[0].String("paisabrev"))
	user, _ := rows[0].Int64(schema.ColumnUserCreated)
	assert.Equal(t, int64(5), user)
}

func TestInsertCommand_Invalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("insert", "pais", "--set", "pais=Perú", "--set", "paisabrev=PER")
	require.Error(t, err)
	assert.True(t, errors.Is(err, runtime.ErrInvalidRow))
	assert.Zero(t, h.posts())
}

func TestInsertCommand_File(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "medios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
table: medio
rows:
  - nombre: Correo
  - nombre: ""
  - nombre: SMS
`), 0o644))

	out, err := h.run("insert", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 rows were not written")
	assert.Contains(t, out, "Inserted 2 of 3 rows")
	assert.Contains(t, out, "row 2:")
	assert.Len(t, h.backend.Rows(schema.TableMedio), 2)

	_, err = h.run("insert", "--file", path, "--massive")
	require.Error(t, err)
	assert.Len(t, h.backend.Rows(schema.TableMedio), 2, "massive insert writes nothing when a row is invalid")
}

func TestUpdateCommand(t *testing.T) {
	h := newHarness(t)
	h.backend.Seed(schema.TableMedio, schema.Row{"nombre": "Correo", "statusid": 1})

	out, err := h.run("update", "medio", "1", "--set", "nombre=Email")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated medio 1")

	rows := h.backend.Rows(schema.TableMedio)
	assert.Equal(t, "Email", rows[0].String("nombre"))
	user, _ := rows[0].Int64(schema.ColumnUserModified)
	assert.Equal(t, int64(5), user)

	_, err = h.run("update", "medio", "x", "--set", "nombre=Email")
	assert.ErrorContains(t, err, "invalid id")
}

func TestValidateCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("validate", "umbral",
		"--set", "umbral=Calor", "--set", "ubicacionid=1", "--set", "nodoid=1",
		"--set", "tipoid=1", "--set", "metricaid=1", "--set", "criticidadid=1",
		"--set", "minimo=10", "--set", "maximo=5")
	require.ErrorIs(t, err, runtime.ErrInvalidRow)
	assert.Contains(t, out, "Maximum")
	assert.Zero(t, h.posts())

	out, err = h.run("validate", "medio", "--set", "nombre=SMS")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid")
}

func TestDepsAndInactivateCommands(t *testing.T) {
	h := newHarness(t)
	h.backend.Seed(schema.TablePais, schema.Row{"pais": "Perú", "paisabrev": "PE", "statusid": 1})
	h.backend.Seed(schema.TableEmpresa, schema.Row{"empresa": "Agro", "empresabrev": "AG", "paisid": 1, "statusid": 1})
	h.backend.Seed(schema.TableMedio, schema.Row{"nombre": "SMS", "statusid": 1})

	out, err := h.run("deps", "pais", "1", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"table":"empresa","column":"paisid","count":1}]`, out)

	out, err = h.run("inactivate", "pais", "1")
	require.ErrorIs(t, err, runtime.ErrHasDependents)
	assert.Contains(t, out, "empresa")

	_, err = h.run("inactivate", "medio", "1")
	require.NoError(t, err)
	status, _ := h.backend.Rows(schema.TableMedio)[0].Int64(schema.ColumnStatus)
	assert.Equal(t, int64(schema.StatusInactive), status)

	_, err = h.run("activate", "medio", "1")
	require.NoError(t, err)
	status, _ = h.backend.Rows(schema.TableMedio)[0].Int64(schema.ColumnStatus)
	assert.Equal(t, int64(schema.StatusActive), status)
}

func TestShowCommand(t *testing.T) {
	h := newHarness(t)
	h.backend.Seed(schema.TablePais, schema.Row{"pais": "Perú", "paisabrev": "PE", "statusid": 1})
	h.backend.Seed(schema.TableEmpresa,
		schema.Row{"empresa": "Agro", "empresabrev": "AG", "paisid": 1, "statusid": 1},
		schema.Row{"empresa": "Vieja", "empresabrev": "VJ", "paisid": 1, "statusid": 0},
	)

	out, err := h.run("show", "empresa")
	require.NoError(t, err)
	assert.Contains(t, out, "Perú", "foreign key rendered as its label")
	assert.Contains(t, out, "Active")
	assert.Contains(t, out, "Vieja")

	out, err = h.run("show", "empresa", "--active-only")
	require.NoError(t, err)
	assert.NotContains(t, out, "Vieja")

	out, err = h.run("show", "empresa", "--json", "--limit", "1")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 1)
}

func TestShowCommand_Where(t *testing.T) {
	h := newHarness(t)
	h.backend.Seed(schema.TablePais,
		schema.Row{"pais": "Perú", "paisabrev": "PE", "statusid": 1},
		schema.Row{"pais": "Chile", "paisabrev": "CL", "statusid": 1},
	)
	h.backend.Seed(schema.TableEmpresa,
		schema.Row{"empresa": "Agro", "empresabrev": "AG", "paisid": 1, "statusid": 1},
		schema.Row{"empresa": "Andes", "empresabrev": "AN", "paisid": 2, "statusid": 1},
	)

	out, err := h.run("show", "empresa", "--where", "paisid=2", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Andes", rows[0]["empresa"])

	filtered := false
	for _, r := range h.backend.Requests() {
		if r.Path == client.DefaultPrefix+"/empresa" && r.Query == "paisid=2" {
			filtered = true
		}
	}
	assert.True(t, filtered, "filter sent to the backend")

	out, err = h.run("show", "empresa", "--where", "paisid=1")
	require.NoError(t, err)
	assert.Contains(t, out, "Agro")
	assert.NotContains(t, out, "Andes")

	_, err = h.run("show", "empresa", "--where", "color=rojo")
	assert.ErrorContains(t, err, `no column "color"`)

	_, err = h.run("show", "empresa", "--where", "paisid")
	assert.ErrorContains(t, err, "expected column=value")
}

func TestShowCommand_Grouped(t *testing.T) {
	h := newHarness(t)
	h.backend.Seed(schema.TableNodo, schema.Row{"nodo": "N-1", "statusid": 1})
	h.backend.Seed(schema.TableTipo,
		schema.Row{"tipo": "Temperatura", "entidadid": 1},
		schema.Row{"tipo": "Humedad", "entidadid": 1},
	)
	h.backend.Seed(schema.TableSensor,
		schema.Row{"nodoid": 1, "tipoid": 1, "statusid": 1},
		schema.Row{"nodoid": 1, "tipoid": 2, "statusid": 1},
	)

	out, err := h.run("show", "sensor")
	require.NoError(t, err)
	assert.Contains(t, out, "sensor (1 rows)")
	assert.Contains(t, out, "Temperatura, Humedad")

	out, err = h.run("show", "sensor", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "sensor (2 rows)")
}

func TestUnknownTable(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("show", "pg_user")
	require.ErrorIs(t, err, runtime.ErrUnknownTable)
	assert.Empty(t, h.backend.Requests())
}

func TestDashboardCommand(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	h.backend.Seed("mediciones",
		schema.Row{"nodoid": 1, "tipoid": 1, "metricaid": 1, "fecha": now.Add(-2 * time.Hour).Format(time.RFC3339), "medicion": 4.0},
		schema.Row{"nodoid": 1, "tipoid": 1, "metricaid": 1, "fecha": now.Add(-time.Hour).Format(time.RFC3339), "medicion": 12.0},
		schema.Row{"nodoid": 1, "tipoid": 1, "metricaid": 1, "fecha": now.Add(-48 * time.Hour).Format(time.RFC3339), "medicion": 100.0},
	)
	h.backend.Seed(schema.TableUmbral, schema.Row{
		"umbral": "Frío", "ubicacionid": 1, "nodoid": 1, "tipoid": 1, "metricaid": 1,
		"criticidadid": 2, "minimo": 5, "maximo": 10, "statusid": 1,
	})

	out, err := h.run("dashboard", "--nodo", "1", "--json")
	require.NoError(t, err)

	var d dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	require.Len(t, d.Series, 1)
	assert.Equal(t, 2, d.Series[0].Summary.Count)
	require.Len(t, d.Breaches, 2)
	assert.Equal(t, "below", string(d.Breaches[0].Direction))
	assert.Equal(t, int64(2), d.Breaches[0].Threshold.CriticidadID)
}
