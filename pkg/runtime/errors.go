// Package runtime provides the error taxonomy and database runtime shared by
// the console's components.
package runtime

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnknownTable is returned when a table name is not in the registry.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRow is returned when a row fails client-side validation.
	ErrInvalidRow = errors.New("invalid row")

	// ErrHasDependents is returned when inactivating a row that other rows reference.
	ErrHasDependents = errors.New("row has dependent records")

	// ErrMissingID is returned when a row has no usable primary key.
	ErrMissingID = errors.New("missing row id")

	// ErrNoConnection is returned when no backend connection is available.
	ErrNoConnection = errors.New("no backend connection")
)

// ErrorType classifies a validation error.
type ErrorType string

const (
	ErrorRequired  ErrorType = "required"
	ErrorFormat    ErrorType = "format"
	ErrorDuplicate ErrorType = "duplicate"
)

// ValidationError represents a field-level validation error.
type ValidationError struct {
	Field   string
	Message string
	Type    ErrorType

	// Index is the 1-based position of the row in a batch, 0 for single rows.
	Index int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("validation error on row %d field %s: %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// APIError is a failed backend call with a best-effort human message.
type APIError struct {
	Status  int
	Message string
	Path    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d (%s)", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.NotFound()
}

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// DependencyError lists the tables that still reference a row.
type DependencyError struct {
	Table  string
	ID     int64
	Tables []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %d is referenced by %v", e.Table, e.ID, e.Tables)
}

// Unwrap returns ErrHasDependents.
func (e *DependencyError) Unwrap() error {
	return ErrHasDependents
}

// Message returns the text shown to a user for err: the backend's error
// message when there is one, else the error string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
