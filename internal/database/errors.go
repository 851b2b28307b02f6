package database

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by FetchByID when no row has the id.
var ErrNotFound = errors.New("record not found")

// ConnectionError reports a failure to open or reach the database.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s database: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a table whose columns could not be determined.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("table %q has no columns or does not exist", e.Table)
	}
	return fmt.Sprintf("failed to load columns of %q: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// QueryError reports a failed lookup or update together with its statement.
type QueryError struct {
	Op        string
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
