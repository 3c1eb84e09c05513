//go:build integration
// +build integration

package pgsource_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thermos-iot/thermos-console/pkg/operations"
	"github.com/thermos-iot/thermos-console/pkg/pgsource"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/tabledata"
)

const ddl = `
CREATE TABLE pais (
	paisid         serial PRIMARY KEY,
	pais           varchar(100) NOT NULL UNIQUE,
	paisabrev      varchar(2) NOT NULL UNIQUE,
	statusid       integer NOT NULL DEFAULT 1,
	usercreatedid  integer,
	datecreated    timestamptz NOT NULL DEFAULT now(),
	usermodifiedid integer,
	datemodified   timestamptz
);
CREATE TABLE empresa (
	empresaid      serial PRIMARY KEY,
	empresa        varchar(100) NOT NULL,
	empresabrev    varchar(10) NOT NULL,
	paisid         integer NOT NULL REFERENCES pais(paisid),
	statusid       integer NOT NULL DEFAULT 1,
	usercreatedid  integer,
	datecreated    timestamptz NOT NULL DEFAULT now(),
	usermodifiedid integer,
	datemodified   timestamptz
);
CREATE TABLE criticidad (
	criticidadid   serial PRIMARY KEY,
	criticidad     varchar(50) NOT NULL,
	grado          numeric(4,1) NOT NULL,
	frecuencia     integer,
	statusid       integer NOT NULL DEFAULT 1,
	usercreatedid  integer,
	datecreated    timestamptz NOT NULL DEFAULT now(),
	usermodifiedid integer,
	datemodified   timestamptz
);`

// setupTestDB starts PostgreSQL, creates part of the Thermos schema and
// returns a connected DB.
func setupTestDB(t *testing.T) *runtime.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("thermos"),
		postgres.WithUsername("thermos"),
		postgres.WithPassword("thermos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := runtime.ConnectWithURL(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Exec(ctx, ddl); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db
}

func TestIntegration_Service(t *testing.T) {
	db := setupTestDB(t)
	svc := pgsource.New(db)
	ctx := context.Background()

	id, err := svc.InsertTableRow(ctx, schema.TablePais, schema.Row{"pais": "Perú", "paisabrev": "PE"})
	if err != nil {
		t.Fatalf("InsertTableRow() error = %v", err)
	}
	if id != 1 {
		t.Errorf("InsertTableRow() id = %d, want 1", id)
	}

	rows, err := svc.GetTableData(ctx, schema.TablePais, 10)
	if err != nil {
		t.Fatalf("GetTableData() error = %v", err)
	}
	if len(rows) != 1 || rows[0].String("pais") != "Perú" {
		t.Fatalf("GetTableData() = %v", rows)
	}
	if _, ok := rows[0].Time(schema.ColumnDateCreated); !ok {
		t.Errorf("datecreated not decoded as a time: %T", rows[0][schema.ColumnDateCreated])
	}

	cols, err := svc.GetTableColumns(ctx, schema.TablePais)
	if err != nil {
		t.Fatalf("GetTableColumns() error = %v", err)
	}
	if len(cols) != 8 || cols[0].ColumnName != "paisid" || !cols[0].IsPrimaryKey {
		t.Errorf("GetTableColumns() = %+v", cols)
	}

	for _, tc := range []struct {
		params url.Values
		want   int
	}{
		{url.Values{"paisabrev": {"PE"}}, 1},
		{url.Values{"paisabrev": {"CL"}}, 0},
		{url.Values{"paisid": {"1"}, "limit": {"5"}}, 1},
	} {
		filtered, err := svc.GetRows(ctx, schema.TablePais, tc.params)
		if err != nil {
			t.Fatalf("GetRows(%v) error = %v", tc.params, err)
		}
		if len(filtered) != tc.want {
			t.Errorf("GetRows(%v) = %d rows, want %d", tc.params, len(filtered), tc.want)
		}
	}

	if err := svc.UpdateTableRow(ctx, schema.TablePais, id, schema.Row{"pais": "Peru"}); err != nil {
		t.Fatalf("UpdateTableRow() error = %v", err)
	}
	if err := svc.UpdateTableRow(ctx, schema.TablePais, 42, schema.Row{"pais": "X"}); !errors.Is(err, runtime.ErrNotFound) {
		t.Errorf("UpdateTableRow(missing) error = %v, want ErrNotFound", err)
	}

	if err := svc.DeleteTableRow(ctx, schema.TablePais, id); err != nil {
		t.Fatalf("DeleteTableRow() error = %v", err)
	}
	rows, _ = svc.GetTableData(ctx, schema.TablePais, 0)
	if status, _ := rows[0].Int64(schema.ColumnStatus); status != schema.StatusInactive {
		t.Errorf("statusid = %d, want %d", status, schema.StatusInactive)
	}

	if _, err := svc.GetTableData(ctx, "pg_user", 1); !errors.Is(err, runtime.ErrUnknownTable) {
		t.Errorf("GetTableData(unregistered) error = %v, want ErrUnknownTable", err)
	}
}

func TestIntegration_NumericColumns(t *testing.T) {
	db := setupTestDB(t)
	svc := pgsource.New(db)
	ctx := context.Background()

	if _, err := svc.InsertTableRow(ctx, schema.TableCriticidad, schema.Row{"criticidad": "Alta", "grado": 2.5}); err != nil {
		t.Fatalf("InsertTableRow() error = %v", err)
	}

	rows, err := svc.GetTableData(ctx, schema.TableCriticidad, 0)
	if err != nil {
		t.Fatalf("GetTableData() error = %v", err)
	}
	if got := rows[0]["grado"]; got != 2.5 {
		t.Errorf("grado = %v (%T), want 2.5", got, got)
	}
}

func TestIntegration_Operations(t *testing.T) {
	db := setupTestDB(t)
	svc := pgsource.New(db)
	ops := operations.New(svc, operations.WithUserID(1))
	ctx := context.Background()

	paisID, err := ops.InsertSingle(ctx, schema.TablePais, schema.Row{"pais": "Chile", "paisabrev": "CL"})
	if err != nil {
		t.Fatalf("InsertSingle() error = %v", err)
	}

	batch := ops.InsertMultiple(ctx, schema.TableEmpresa, []schema.Row{
		{"empresa": "Agro Sur", "empresabrev": "AGS", "paisid": paisID},
		{"empresa": "Sin país", "empresabrev": "SP"},
		{"empresa": "Frutícola", "empresabrev": "FRU", "paisid": paisID},
	})
	if batch.Succeeded != 2 || len(batch.Errors) != 1 || batch.Errors[0].Index != 2 {
		t.Fatalf("InsertMultiple() = %+v", batch)
	}

	if err := ops.Inactivate(ctx, schema.TablePais, paisID); !errors.Is(err, runtime.ErrHasDependents) {
		t.Errorf("Inactivate() error = %v, want ErrHasDependents", err)
	}

	manager := tabledata.New(svc)
	state, err := manager.LoadTableData(ctx, schema.TableEmpresa)
	if err != nil {
		t.Fatalf("LoadTableData() error = %v", err)
	}
	if len(state.Rows) != 2 {
		t.Errorf("LoadTableData() rows = %d, want 2", len(state.Rows))
	}
}
