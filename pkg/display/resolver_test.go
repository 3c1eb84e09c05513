package display

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

func TestDisplayValue_ForeignKey(t *testing.T) {
	r := NewResolver()
	refs := NewReferenceData(map[string][]schema.Row{
		schema.TableFundo: {{"fundoid": 5, "fundo": "Fundo X"}},
	})

	assert.Equal(t, "Fundo X", r.DisplayValue(schema.Row{"fundoid": 5}, "fundoid", refs))
	assert.Equal(t, "Fundo X", r.DisplayValue(schema.Row{"fundoid": json.Number("5")}, "fundoid", refs))
	assert.Equal(t, "7", r.DisplayValue(schema.Row{"fundoid": 7}, "fundoid", refs))

	empty := NewReferenceData(nil)
	assert.Equal(t, "5", r.DisplayValue(schema.Row{"fundoid": 5}, "fundoid", empty))
}

func TestDisplayValue_NewSnapshotInvalidatesLabels(t *testing.T) {
	r := NewResolver()

	before := NewReferenceData(map[string][]schema.Row{
		schema.TablePais: {{"paisid": 1, "pais": "Peru"}},
	})
	assert.Equal(t, "Peru", r.DisplayValue(schema.Row{"paisid": 1}, "paisid", before))

	after := NewReferenceData(map[string][]schema.Row{
		schema.TablePais: {{"paisid": 1, "pais": "Perú"}},
	})
	assert.Greater(t, after.Version(), before.Version())
	assert.Equal(t, "Perú", r.DisplayValue(schema.Row{"paisid": 1}, "paisid", after))
}

func TestDisplayValue_LabelFallsBackToID(t *testing.T) {
	r := NewResolver()
	refs := NewReferenceData(map[string][]schema.Row{
		schema.TableSensor: {{"sensorid": 3, "nodoid": 1}},
	})

	label, ok := r.Label(schema.TableSensor, 3, refs)
	assert.True(t, ok)
	assert.Equal(t, "3", label)
}

func TestDisplayValue_Status(t *testing.T) {
	es := NewResolver()
	en := NewResolver(WithLanguage(English))

	assert.Equal(t, "Activo", es.DisplayValue(schema.Row{"statusid": 1}, "statusid", nil))
	assert.Equal(t, "Inactivo", es.DisplayValue(schema.Row{"statusid": 0}, "statusid", nil))
	assert.Equal(t, "Active", en.DisplayValue(schema.Row{"statusid": json.Number("1")}, "statusid", nil))
	assert.Equal(t, "Inactive", en.DisplayValue(schema.Row{"statusid": false}, "statusid", nil))
	assert.Equal(t, "9", es.DisplayValue(schema.Row{"statusid": 9}, "statusid", nil))
}

func TestDisplayValue_Users(t *testing.T) {
	r := NewResolver()
	refs := NewReferenceData(map[string][]schema.Row{
		schema.TableUsuario: {
			{"usuarioid": 1, "firstname": "Ana", "lastname": "Torres", "login": "ana@thermos.pe"},
			{"usuarioid": 2, "login": "ops@thermos.pe"},
		},
	})

	assert.Equal(t, "Ana Torres", r.DisplayValue(schema.Row{"usercreatedid": 1}, "usercreatedid", refs))
	assert.Equal(t, "ops@thermos.pe", r.DisplayValue(schema.Row{"usermodifiedid": 2}, "usermodifiedid", refs))
	assert.Equal(t, "3", r.DisplayValue(schema.Row{"usuarioid": 3}, "usuarioid", refs))
}

func TestDisplayValue_Dates(t *testing.T) {
	r := NewResolver(WithLocation(time.UTC))
	row := schema.Row{"datecreated": "2026-03-05T14:07:09Z", "fechainicio": "not a date"}

	assert.Equal(t, "05/03/2026, 14:07:09", r.DisplayValue(row, "datecreated", nil))
	assert.Equal(t, "not a date", r.DisplayValue(row, "fechainicio", nil))

	en := NewResolver(WithLanguage(English), WithLocation(time.UTC))
	assert.Equal(t, "3/5/2026, 2:07:09 PM", en.DisplayValue(row, "datecreated", nil))
}

func TestDisplayValue_Scalars(t *testing.T) {
	r := NewResolver()
	row := schema.Row{"activo": true, "maximo": 12.5, "nombre": "SMS", "vacio": nil}

	assert.Equal(t, "Sí", r.DisplayValue(row, "activo", nil))
	assert.Equal(t, "12.5", r.DisplayValue(row, "maximo", nil))
	assert.Equal(t, "SMS", r.DisplayValue(row, "nombre", nil))
	assert.Equal(t, "", r.DisplayValue(row, "vacio", nil))
	assert.Equal(t, "", r.DisplayValue(row, "missing", nil))
	assert.Equal(t, "No", NewResolver(WithLanguage(English)).DisplayValue(schema.Row{"x": false}, "x", nil))
}

func TestTableValue_OwnPrimaryKey(t *testing.T) {
	r := NewResolver()
	refs := NewReferenceData(map[string][]schema.Row{
		schema.TableFundo: {{"fundoid": 5, "fundo": "Fundo X"}},
	})
	row := schema.Row{"fundoid": 5}

	assert.Equal(t, "5", r.TableValue(schema.TableFundo, row, "fundoid", refs))
	assert.Equal(t, "Fundo X", r.TableValue(schema.TableUbicacion, row, "fundoid", refs))
}

func TestClear(t *testing.T) {
	r := NewResolver()
	refs := NewReferenceData(map[string][]schema.Row{
		schema.TableMedio: {{"medioid": 1, "nombre": "SMS"}},
	})

	_, ok := r.Label(schema.TableMedio, 1, refs)
	assert.True(t, ok)
	assert.Equal(t, 1, r.cache.Len())

	r.Clear()
	assert.Equal(t, 0, r.cache.Len())
}

func TestColumnDisplayName(t *testing.T) {
	assert.Equal(t, "País", ColumnDisplayName("paisid"))
	assert.Equal(t, "Country", ColumnDisplayNameTranslated("paisid", English))
	assert.Equal(t, "Fecha de creación", ColumnDisplayName("datecreated"))
	assert.Equal(t, "Custom field", ColumnDisplayName("custom_field"))
}

func TestParseLang(t *testing.T) {
	assert.Equal(t, English, ParseLang("en-US"))
	assert.Equal(t, English, ParseLang("EN"))
	assert.Equal(t, Spanish, ParseLang("es-PE"))
	assert.Equal(t, Spanish, ParseLang(""))
}
