package pgsource

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		name     string
		filters  map[string]any
		limit    int
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "limit",
			limit:   500,
			wantSQL: `SELECT * FROM "public"."pais" ORDER BY "paisid" DESC LIMIT 500`,
		},
		{
			name:    "no limit",
			wantSQL: `SELECT * FROM "public"."pais" ORDER BY "paisid" DESC`,
		},
		{
			name:     "filters in column order",
			filters:  map[string]any{"statusid": 1, "paisabrev": "PE"},
			limit:    10,
			wantSQL:  `SELECT * FROM "public"."pais" WHERE "paisabrev"::text = $1 AND "statusid" = $2 ORDER BY "paisid" DESC LIMIT 10`,
			wantArgs: []any{"PE", 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := selectSQL("public", schema.TablePais, tt.filters, tt.limit)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhereParams(t *testing.T) {
	filters, limit, err := whereParams(url.Values{
		"limit":    {"25"},
		"paisid":   {"3"},
		"statusid": {"1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
	assert.Equal(t, map[string]any{"paisid": "3", "statusid": "1"}, filters)

	sql, args := selectSQL("agro", schema.TableEmpresa, filters, limit)
	assert.Equal(t, `SELECT * FROM "agro"."empresa" WHERE "paisid"::text = $1 AND "statusid"::text = $2 ORDER BY "empresaid" DESC LIMIT 25`, sql)
	assert.Equal(t, []any{"3", "1"}, args)

	filters, limit, err = whereParams(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)
	assert.Zero(t, limit)

	_, _, err = whereParams(url.Values{"limit": {"all"}})
	assert.ErrorContains(t, err, "limit must be a number")
}

func TestInsertSQL(t *testing.T) {
	sql, args, err := insertSQL("thermos", schema.TableMedio, schema.Row{
		"nombre":   "SMS",
		"statusid": json.Number("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, `INSERT INTO "thermos"."medio" ("nombre", "statusid") VALUES ($1, $2) RETURNING "medioid"`, sql)
	assert.Equal(t, []any{"SMS", int64(1)}, args)

	_, _, err = insertSQL("thermos", schema.TableMedio, schema.Row{})
	assert.Error(t, err)
}

func TestUpdateSQL(t *testing.T) {
	sql, args, err := updateSQL("public", schema.TableUmbral, 4, schema.Row{
		"minimo": json.Number("2.5"),
		"maximo": 8,
	})
	require.NoError(t, err)

	assert.Equal(t, `UPDATE "public"."umbral" SET "maximo" = $1, "minimo" = $2 WHERE "umbralid" = $3`, sql)
	assert.Equal(t, []any{8, 2.5, int64(4)}, args)

	_, _, err = updateSQL("public", schema.TableUmbral, 4, nil)
	assert.Error(t, err)
}

func TestInactivateSQL(t *testing.T) {
	sql, args := inactivateSQL("public", schema.TableNodo, 9)

	assert.Equal(t, `UPDATE "public"."nodo" SET "statusid" = $1 WHERE "nodoid" = $2`, sql)
	assert.Equal(t, []any{schema.StatusInactive, int64(9)}, args)
}

func TestIdentifiersAreQuoted(t *testing.T) {
	sql, _ := selectSQL("public", `pais"; DROP TABLE pais; --`, nil, 0)
	assert.Contains(t, sql, `"pais""; DROP TABLE pais; --"`)
}

func TestNormalizeValue(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.75"))
	assert.Equal(t, 12.75, normalizeValue(n))

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))

	id := [16]byte{0x55, 0x0e, 0x84, 0x00, 0xe2, 0x9b, 0x41, 0xd4, 0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00}
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", normalizeValue(id))

	assert.Equal(t, "text", normalizeValue("text"))
}
