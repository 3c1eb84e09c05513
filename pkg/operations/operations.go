// Package operations runs the write paths of the console: validate, stamp
// audit columns and call the backend, for single rows and batches.
//
// Batches are not atomic. Rows written before a failure stay written.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thermos-iot/thermos-console/pkg/dependency"
	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/validation"
)

// Service is the backend contract the operations write through.
type Service interface {
	GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error)
	InsertTableRow(ctx context.Context, table string, row schema.Row) (int64, error)
	UpdateTableRow(ctx context.Context, table string, id int64, row schema.Row) error
	DeleteTableRow(ctx context.Context, table string, id int64) error
}

// State records the outcome of the latest insert or update.
type State struct {
	Running bool   `json:"running"`
	Success bool   `json:"success"`
	Err     error  `json:"-"`
	LastID  int64  `json:"lastId,omitempty"`
	Message string `json:"message,omitempty"`
}

// Update is one row of a batch update.
type Update struct {
	ID  int64      `json:"id"`
	Row schema.Row `json:"row"`
}

// Operations validates and writes rows.
type Operations struct {
	service   Service
	registry  *registry.Registry
	validator *validation.Validator
	checker   *dependency.Checker
	lang      display.Lang
	userID    int64
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	insert State
	update State
}

// Option configures Operations.
type Option func(*Operations)

// WithRegistry uses reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *Operations) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// WithLanguage sets the language of messages.
func WithLanguage(lang display.Lang) Option {
	return func(o *Operations) {
		o.lang = lang
	}
}

// WithUserID stamps id into the created-by and modified-by columns.
func WithUserID(id int64) Option {
	return func(o *Operations) {
		o.userID = id
	}
}

// WithClock overrides time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Operations) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Operations) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates Operations writing through service. Validation and dependency
// checks read through the same service.
func New(service Service, opts ...Option) *Operations {
	o := &Operations{
		service:  service,
		registry: registry.Default(),
		lang:     display.Spanish,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.validator = validation.New(service,
		validation.WithRegistry(o.registry),
		validation.WithLanguage(o.lang),
		validation.WithLogger(o.logger))
	o.checker = dependency.New(service,
		dependency.WithRegistry(o.registry),
		dependency.WithLogger(o.logger))

	return o
}

// Validator returns the validator the operations use.
func (o *Operations) Validator() *validation.Validator {
	return o.validator
}

// Checker returns the dependency checker used before inactivation.
func (o *Operations) Checker() *dependency.Checker {
	return o.checker
}

// InsertState returns the outcome of the latest insert.
func (o *Operations) InsertState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.insert
}

// UpdateState returns the outcome of the latest update.
func (o *Operations) UpdateState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update
}

func (o *Operations) setState(target *State, s State) {
	o.mu.Lock()
	*target = s
	o.mu.Unlock()
}

// InsertSingle validates row, stamps its audit columns and inserts it. It
// returns the id assigned by the backend, 0 when the backend did not report one.
func (o *Operations) InsertSingle(ctx context.Context, table string, row schema.Row) (int64, error) {
	o.setState(&o.insert, State{Running: true})

	id, msg, err := o.insertOne(ctx, table, row)
	if err != nil {
		o.setState(&o.insert, State{Err: err, Message: msg})
		return 0, err
	}

	o.setState(&o.insert, State{Success: true, LastID: id, Message: msgInserted.format(o.lang, 1, 1)})
	return id, nil
}

// insertOne returns the id, or a user-facing message and the error.
func (o *Operations) insertOne(ctx context.Context, table string, row schema.Row) (int64, string, error) {
	result := o.validator.ValidateInsert(table, row)
	if !result.IsValid {
		return 0, result.UserFriendlyMessage, result.Err()
	}
	return o.write(ctx, table, row)
}

func (o *Operations) write(ctx context.Context, table string, row schema.Row) (int64, string, error) {
	id, err := o.service.InsertTableRow(ctx, table, o.stampInsert(table, row))
	if err != nil {
		o.logger.Error("insert failed", "table", table, "error", err)
		return 0, runtime.Message(err), err
	}
	o.logger.Debug("row inserted", "table", table, "id", id)
	return id, "", nil
}

// InsertMultiple validates and inserts each row independently. A failing row
// is reported and the batch continues.
func (o *Operations) InsertMultiple(ctx context.Context, table string, rows []schema.Row) BatchResult {
	o.setState(&o.insert, State{Running: true})

	batch := BatchResult{Total: len(rows)}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			batch.fail(i+1, runtime.Message(err), err)
			continue
		}
		id, msg, err := o.insertOne(ctx, table, row)
		if err != nil {
			batch.fail(i+1, msg, err)
			continue
		}
		batch.succeed(id)
	}

	batch.Message = msgInserted.format(o.lang, batch.Succeeded, batch.Total)
	o.finishBatch(&o.insert, batch)
	return batch
}

// InsertMassive validates the whole batch first, including natural keys
// repeated inside it, and inserts nothing unless every row passes.
func (o *Operations) InsertMassive(ctx context.Context, table string, rows []schema.Row) BatchResult {
	o.setState(&o.insert, State{Running: true})

	batch := BatchResult{Total: len(rows)}

	result := o.validator.ValidateMassiveInsert(table, rows)
	if !result.IsValid {
		for _, e := range result.Errors {
			verr := e
			batch.fail(e.Index, e.Message, fmt.Errorf("%w: %w", runtime.ErrInvalidRow, &verr))
		}
		batch.Message = msgInserted.format(o.lang, 0, batch.Total)
		o.finishBatch(&o.insert, batch)
		return batch
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			batch.fail(i+1, runtime.Message(err), err)
			continue
		}
		id, msg, err := o.write(ctx, table, row)
		if err != nil {
			batch.fail(i+1, msg, err)
			continue
		}
		batch.succeed(id)
	}

	batch.Message = msgInserted.format(o.lang, batch.Succeeded, batch.Total)
	o.finishBatch(&o.insert, batch)
	return batch
}

// UpdateSingle validates row against the table's rules and existing natural
// keys, stamps the modification columns and updates the row with id.
func (o *Operations) UpdateSingle(ctx context.Context, table string, id int64, row schema.Row) error {
	o.setState(&o.update, State{Running: true})

	msg, err := o.updateOne(ctx, table, id, row)
	if err != nil {
		o.setState(&o.update, State{Err: err, Message: msg, LastID: id})
		return err
	}

	o.setState(&o.update, State{Success: true, LastID: id, Message: msgUpdated.format(o.lang, 1, 1)})
	return nil
}

func (o *Operations) updateOne(ctx context.Context, table string, id int64, row schema.Row) (string, error) {
	if id <= 0 {
		return msgMissingID.format(o.lang), runtime.ErrMissingID
	}

	result, err := o.validator.ValidateUpdate(ctx, table, id, row)
	if err != nil {
		return runtime.Message(err), err
	}
	if !result.IsValid {
		return result.UserFriendlyMessage, result.Err()
	}

	if err := o.service.UpdateTableRow(ctx, table, id, o.stampUpdate(table, row)); err != nil {
		o.logger.Error("update failed", "table", table, "id", id, "error", err)
		return runtime.Message(err), err
	}

	o.logger.Debug("row updated", "table", table, "id", id)
	return "", nil
}

// UpdateMultiple validates and updates each row independently.
func (o *Operations) UpdateMultiple(ctx context.Context, table string, updates []Update) BatchResult {
	o.setState(&o.update, State{Running: true})

	batch := BatchResult{Total: len(updates)}
	for i, u := range updates {
		if err := ctx.Err(); err != nil {
			batch.fail(i+1, runtime.Message(err), err)
			continue
		}
		msg, err := o.updateOne(ctx, table, u.ID, u.Row)
		if err != nil {
			batch.fail(i+1, msg, err)
			continue
		}
		batch.succeed(u.ID)
	}

	batch.Message = msgUpdated.format(o.lang, batch.Succeeded, batch.Total)
	o.finishBatch(&o.update, batch)
	return batch
}

// Inactivate sets a row's status to inactive unless rows of other tables
// still reference it, in which case it returns a
// *runtime.DependencyError. The dependency check fails open and is not
// atomic with the status change.
func (o *Operations) Inactivate(ctx context.Context, table string, id int64) error {
	if !o.registry.HasTable(table) {
		return fmt.Errorf("%w: %s", runtime.ErrUnknownTable, table)
	}
	if id <= 0 {
		return runtime.ErrMissingID
	}

	deps, err := o.checker.Dependents(ctx, table, id)
	if err != nil {
		o.logger.Warn("dependency check incomplete, allowing inactivation", "table", table, "id", id, "error", err)
	}
	if len(deps) > 0 {
		tables := make([]string, len(deps))
		for i, d := range deps {
			tables[i] = d.Table
		}
		return &runtime.DependencyError{Table: table, ID: id, Tables: tables}
	}

	if err := o.service.DeleteTableRow(ctx, table, id); err != nil {
		return err
	}

	o.logger.Info("row inactivated", "table", table, "id", id, "user", o.userID)
	return nil
}

// Activate sets a row's status back to active.
func (o *Operations) Activate(ctx context.Context, table string, id int64) error {
	if !o.registry.HasTable(table) {
		return fmt.Errorf("%w: %s", runtime.ErrUnknownTable, table)
	}
	if id <= 0 {
		return runtime.ErrMissingID
	}

	row := o.stampUpdate(table, schema.Row{schema.ColumnStatus: schema.StatusActive})
	if err := o.service.UpdateTableRow(ctx, table, id, row); err != nil {
		return err
	}

	o.logger.Info("row activated", "table", table, "id", id, "user", o.userID)
	return nil
}

func (o *Operations) finishBatch(target *State, batch BatchResult) {
	s := State{
		Success: batch.Succeeded == batch.Total && batch.Total > 0,
		Err:     batch.Err(),
		Message: batch.Message,
	}
	if n := len(batch.IDs); n > 0 {
		s.LastID = batch.IDs[n-1]
	}
	o.setState(target, s)
}

// stampInsert returns a copy of row without its primary key, with the
// status defaulted to active and the creation audit columns set.
func (o *Operations) stampInsert(table string, row schema.Row) schema.Row {
	out := row.Clone()
	delete(out, table+schema.PrimaryKeySuffix)

	if out.IsBlank(schema.ColumnStatus) {
		out[schema.ColumnStatus] = schema.StatusActive
	}
	if o.userID > 0 {
		out[schema.ColumnUserCreated] = o.userID
	}
	out[schema.ColumnDateCreated] = o.now().UTC()
	return out
}

// stampUpdate returns a copy of row without its primary key and creation
// audit columns, with the modification audit columns set.
func (o *Operations) stampUpdate(table string, row schema.Row) schema.Row {
	out := row.Clone()
	delete(out, table+schema.PrimaryKeySuffix)
	delete(out, schema.ColumnUserCreated)
	delete(out, schema.ColumnDateCreated)

	if o.userID > 0 {
		out[schema.ColumnUserModified] = o.userID
	}
	out[schema.ColumnDateModified] = o.now().UTC()
	return out
}

// IsValidationError reports whether err was produced by client-side validation.
func IsValidationError(err error) bool {
	return errors.Is(err, runtime.ErrInvalidRow)
}
