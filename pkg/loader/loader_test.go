package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_List(t *testing.T) {
	doc, err := Parse([]byte(`
- pais: Perú
  paisabrev: PE
- pais: Chile
  paisabrev: CL
`))
	require.NoError(t, err)

	assert.Empty(t, doc.Table)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, "Chile", doc.Rows[1].String("pais"))
}

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(`[{"empresa": "Agro Sur", "paisid": 3}]`))
	require.NoError(t, err)

	require.Len(t, doc.Rows, 1)
	id, ok := doc.Rows[0].Int64("paisid")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

func TestParse_Document(t *testing.T) {
	doc, err := Parse([]byte(`
table: empresa
rows:
  - empresa: Agro Sur
    empresabrev: AGS
    paisid: 1
updates:
  - id: 4
    row:
      empresabrev: AGR
`))
	require.NoError(t, err)

	assert.Equal(t, "empresa", doc.Table)
	require.Len(t, doc.Rows, 1)
	require.Len(t, doc.Updates, 1)
	assert.Equal(t, int64(4), doc.Updates[0].ID)
	assert.Equal(t, "AGR", doc.Updates[0].Row.String("empresabrev"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "blank", input: "  \n", want: ErrEmpty.Error()},
		{name: "empty list", input: "[]", want: ErrEmpty.Error()},
		{name: "scalar", input: "hello", want: "a scalar value"},
		{name: "malformed", input: "- a: [", want: "failed to parse rows"},
		{name: "row is not a mapping", input: "- 1\n- 2", want: "failed to decode rows"},
		{name: "update without id", input: "updates:\n  - row: {a: 1}", want: "update 1 has no id"},
		{name: "update without changes", input: "updates:\n  - id: 3", want: "update 1 has no changes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("02_empresa.json", `{"table": "empresa", "rows": [{"empresa": "A"}]}`)
	write("01_pais.yaml", "table: pais\nrows:\n  - pais: Perú\n")
	write("notes.txt", "ignored")

	docs, err := LoadPath(dir)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "pais", docs[0].Table)
	assert.Equal(t, "empresa", docs[1].Table)
	assert.Equal(t, filepath.Join(dir, "01_pais.yaml"), docs[0].Path)

	single, err := LoadPath(filepath.Join(dir, "01_pais.yaml"))
	require.NoError(t, err)
	assert.Len(t, single, 1)
}

func TestLoadPath_Errors(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPath(t.TempDir())
	assert.ErrorContains(t, err, "no row files found")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.yml"), nil, 0o644))
	_, err = LoadPath(dir)
	assert.True(t, errors.Is(err, ErrEmpty))
}
