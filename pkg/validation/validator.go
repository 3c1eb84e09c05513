// Package validation checks candidate rows against the per-table rules in the
// registry before they are sent to the backend.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Result is the outcome of validating one row or a batch.
type Result struct {
	IsValid             bool                      `json:"isValid"`
	Errors              []runtime.ValidationError `json:"errors"`
	UserFriendlyMessage string                    `json:"userFriendlyMessage"`
}

// Err returns the first error as an error wrapping runtime.ErrInvalidRow, or
// nil for a valid result.
func (r Result) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	return fmt.Errorf("%w: %w", runtime.ErrInvalidRow, &first)
}

// RowFetcher loads the rows of a table. Update validation uses it to look for
// natural-key collisions.
type RowFetcher interface {
	GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error)
}

// Validator applies the registry's table rules to rows.
type Validator struct {
	registry *registry.Registry
	rows     RowFetcher
	validate *validator.Validate
	lang     display.Lang
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLanguage sets the language of error messages (default Spanish).
func WithLanguage(lang display.Lang) Option {
	return func(v *Validator) {
		v.lang = lang
	}
}

// WithRegistry validates against reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(v *Validator) {
		if reg != nil {
			v.registry = reg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a Validator. rows may be nil when only insert validation is used.
func New(rows RowFetcher, opts ...Option) *Validator {
	v := &Validator{
		registry: registry.Default(),
		rows:     rows,
		validate: validator.New(),
		lang:     display.Spanish,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateInsert checks required fields, format rules and the table's custom
// check. It performs no I/O.
func (v *Validator) ValidateInsert(tableName string, row schema.Row) Result {
	table, err := v.registry.GetByName(tableName)
	if err != nil {
		return v.unknownTable(tableName)
	}
	return v.result(v.rowErrors(table, row, 0))
}

// ValidateUpdate validates row as a patch of the stored row with id. It
// fetches the table once, overlays row on the stored row and runs the insert
// rules and the natural-key collision check on the merged row. When the
// table cannot be fetched, only the columns present in row are checked and
// the fetch error is returned alongside the result. A missing row yields
// runtime.ErrNotFound.
func (v *Validator) ValidateUpdate(ctx context.Context, tableName string, id int64, row schema.Row) (Result, error) {
	table, err := v.registry.GetByName(tableName)
	if err != nil {
		return v.unknownTable(tableName), nil
	}

	if v.rows == nil {
		return v.result(v.patchErrors(table, row)), runtime.ErrNoConnection
	}
	existing, err := v.rows.GetTableData(ctx, tableName, 0)
	if err != nil {
		return v.result(v.patchErrors(table, row)), fmt.Errorf("failed to load %s for update check: %w", tableName, err)
	}

	stored, ok := findRow(table, id, existing)
	if !ok {
		return v.result(v.patchErrors(table, row)), fmt.Errorf("%w: %s %d", runtime.ErrNotFound, tableName, id)
	}

	merged := stored.Clone()
	for column, value := range row {
		merged[column] = value
	}

	errs := v.rowErrors(table, merged, 0)
	errs = append(errs, v.collisions(table, id, merged, existing)...)
	return v.result(errs), nil
}

// patchErrors runs the static rules on a partial row. Required columns are
// only enforced when the patch sets them.
func (v *Validator) patchErrors(table *schema.Table, row schema.Row) []runtime.ValidationError {
	return slices.DeleteFunc(v.rowErrors(table, row, 0), func(e runtime.ValidationError) bool {
		_, present := row[e.Field]
		return e.Type == runtime.ErrorRequired && !present
	})
}

func findRow(table *schema.Table, id int64, rows []schema.Row) (schema.Row, bool) {
	for _, r := range rows {
		if rowID, ok := table.ID(r); ok && rowID == id {
			return r, true
		}
	}
	return nil, false
}

// ValidateMultipleInsert validates each row on its own; errors carry the
// row's 1-based index.
func (v *Validator) ValidateMultipleInsert(tableName string, rows []schema.Row) Result {
	table, err := v.registry.GetByName(tableName)
	if err != nil {
		return v.unknownTable(tableName)
	}

	var errs []runtime.ValidationError
	for i, row := range rows {
		errs = append(errs, v.rowErrors(table, row, i+1)...)
	}
	return v.result(errs)
}

// ValidateMassiveInsert is ValidateMultipleInsert plus an empty-batch check
// and detection of natural keys repeated inside the batch.
func (v *Validator) ValidateMassiveInsert(tableName string, rows []schema.Row) Result {
	table, err := v.registry.GetByName(tableName)
	if err != nil {
		return v.unknownTable(tableName)
	}

	if len(rows) == 0 {
		return v.result([]runtime.ValidationError{{
			Field:   "rows",
			Message: msgEmptyBatch.format(v.lang),
			Type:    runtime.ErrorRequired,
		}})
	}

	var errs []runtime.ValidationError
	for i, row := range rows {
		errs = append(errs, v.rowErrors(table, row, i+1)...)
	}

	for _, key := range table.NaturalKeys {
		seen := make(map[string]int, len(rows))
		for i, row := range rows {
			k, ok := naturalKey(row, key)
			if !ok {
				continue
			}
			if first, dup := seen[k]; dup {
				errs = append(errs, runtime.ValidationError{
					Field:   key[0],
					Message: msgBatchDup.format(v.lang, i+1, fieldNames(v.lang, key), fieldValues(row, key), first),
					Type:    runtime.ErrorDuplicate,
					Index:   i + 1,
				})
				continue
			}
			seen[k] = i + 1
		}
	}

	return v.result(errs)
}

// rowErrors runs the static rules for one row. index is 0 for single rows.
func (v *Validator) rowErrors(table *schema.Table, row schema.Row, index int) []runtime.ValidationError {
	var errs []runtime.ValidationError

	for _, field := range table.Required {
		if row.IsBlank(field) {
			errs = append(errs, runtime.ValidationError{
				Field:   field,
				Message: msgRequired.format(v.lang, display.ColumnDisplayNameTranslated(field, v.lang)),
				Type:    runtime.ErrorRequired,
				Index:   index,
			})
		}
	}

	for _, fk := range table.ForeignKeys {
		if row.IsBlank(fk.Column) {
			continue
		}
		if _, ok := row.Int64(fk.Column); !ok {
			errs = append(errs, runtime.ValidationError{
				Field:   fk.Column,
				Message: msgInvalidID.format(v.lang, display.ColumnDisplayNameTranslated(fk.Column, v.lang)),
				Type:    runtime.ErrorFormat,
				Index:   index,
			})
		}
	}

	for _, field := range slices.Sorted(maps.Keys(table.Formats)) {
		if row.IsBlank(field) {
			continue
		}
		if msg, ok := v.checkFormat(field, table.Formats[field], row.String(field)); !ok {
			errs = append(errs, runtime.ValidationError{
				Field:   field,
				Message: msg,
				Type:    runtime.ErrorFormat,
				Index:   index,
			})
		}
	}

	if table.Check != nil {
		for _, issue := range table.Check(row) {
			errs = append(errs, runtime.ValidationError{
				Field:   issue.Field,
				Message: issueMessage(v.lang, issue),
				Type:    runtime.ErrorFormat,
				Index:   index,
			})
		}
	}

	return errs
}

// checkFormat validates the text form of a value against validator tags.
func (v *Validator) checkFormat(field, tags, value string) (string, bool) {
	err := v.validate.Var(value, tags)
	if err == nil {
		return "", true
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return formatMessage(v.lang, field, fieldErrs[0].Tag(), fieldErrs[0].Param()), false
	}

	v.logger.Warn("format rule could not be applied", "field", field, "tags", tags, "error", err)
	return "", true
}

// collisions reports natural keys of row already present on rows other than id.
func (v *Validator) collisions(table *schema.Table, id int64, row schema.Row, existing []schema.Row) []runtime.ValidationError {
	var errs []runtime.ValidationError

	for _, key := range table.NaturalKeys {
		want, ok := naturalKey(row, key)
		if !ok {
			continue
		}
		for _, other := range existing {
			if otherID, ok := table.ID(other); ok && otherID == id {
				continue
			}
			if got, ok := naturalKey(other, key); ok && got == want {
				errs = append(errs, runtime.ValidationError{
					Field:   key[0],
					Message: msgDuplicate.format(v.lang, fieldNames(v.lang, key), fieldValues(row, key)),
					Type:    runtime.ErrorDuplicate,
				})
				break
			}
		}
	}

	return errs
}

// naturalKey normalizes the key columns of row for comparison. It reports
// false when any column is blank.
func naturalKey(row schema.Row, columns []string) (string, bool) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		if row.IsBlank(c) {
			return "", false
		}
		parts[i] = strings.ToLower(row.String(c))
	}
	return strings.Join(parts, "\x00"), true
}

func (v *Validator) unknownTable(name string) Result {
	return v.result([]runtime.ValidationError{{
		Message: msgUnknownTable.format(v.lang, name),
		Type:    runtime.ErrorFormat,
	}})
}

func (v *Validator) result(errs []runtime.ValidationError) Result {
	if len(errs) == 0 {
		return Result{IsValid: true, Errors: []runtime.ValidationError{}}
	}
	return Result{
		IsValid:             false,
		Errors:              errs,
		UserFriendlyMessage: v.summary(errs),
	}
}

func (v *Validator) summary(errs []runtime.ValidationError) string {
	if len(errs) == 1 {
		return v.line(errs[0])
	}

	var b strings.Builder
	b.WriteString(msgSummary.format(v.lang))
	for _, e := range errs {
		b.WriteString("\n- ")
		b.WriteString(v.line(e))
	}
	return b.String()
}

func (v *Validator) line(e runtime.ValidationError) string {
	if e.Index > 0 {
		return msgRow.format(v.lang, e.Index, e.Message)
	}
	return e.Message
}
