package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one fetched record: values keyed by column, plus the column order
// the server returned.
type Row struct {
	Columns []string
	Values  map[string]any
}

// Change is a column and the text to store in it.
type Change struct {
	Column string
	Value  string
}

// Statement is an executed statement and its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = strconv.Quote(FormatValue(a))
	}
	return s.SQL + " [" + strings.Join(args, ", ") + "]"
}

// SelectByIDStatement builds the point lookup for a row.
func SelectByIDStatement(d Dialect, table, idColumn string, id int64) Statement {
	return Statement{
		SQL: fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
			d.Quote(table), d.Quote(idColumn), d.Placeholder(1)),
		Args: []any{id},
	}
}

// UpdateByIDStatement builds an UPDATE setting changes in order on one row.
func UpdateByIDStatement(d Dialect, table, idColumn string, id int64, changes []Change) Statement {
	setParts := make([]string, len(changes))
	args := make([]any, 0, len(changes)+1)
	for i, ch := range changes {
		setParts[i] = fmt.Sprintf("%s = %s", d.Quote(ch.Column), d.Placeholder(i+1))
		args = append(args, ch.Value)
	}
	args = append(args, id)

	return Statement{
		SQL: fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			d.Quote(table), strings.Join(setParts, ", "),
			d.Quote(idColumn), d.Placeholder(len(changes)+1)),
		Args: args,
	}
}

// FetchByID returns the row whose idColumn equals id, or ErrNotFound.
func FetchByID(ctx context.Context, db *sql.DB, d Dialect, table, idColumn string, id int64) (*Row, error) {
	stmt := SelectByIDStatement(d, table, idColumn, id)

	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, &QueryError{Op: "search", Statement: stmt.SQL, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Op: "search", Statement: stmt.SQL, Err: err}
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &QueryError{Op: "search", Statement: stmt.SQL, Err: err}
		}
		return nil, ErrNotFound
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, &QueryError{Op: "search", Statement: stmt.SQL, Err: fmt.Errorf("failed to scan row: %w", err)}
	}

	row := &Row{Columns: columns, Values: make(map[string]any, len(columns))}
	for i, col := range columns {
		// Convert []byte to string for readability
		if b, ok := values[i].([]byte); ok {
			row.Values[col] = string(b)
			continue
		}
		row.Values[col] = values[i]
	}
	return row, nil
}

// UpdateByID writes changes to one row inside a transaction and returns
// the executed statement. An update that matches no row is rolled back and
// fails with ErrNotFound.
func UpdateByID(ctx context.Context, db *sql.DB, d Dialect, table, idColumn string, id int64, changes []Change) (Statement, error) {
	stmt := UpdateByIDStatement(d, table, idColumn, id, changes)
	if len(changes) == 0 {
		return stmt, errors.New("no changes to update")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stmt, &QueryError{Op: "update", Statement: stmt.SQL, Err: err}
	}

	res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		tx.Rollback()
		return stmt, &QueryError{Op: "update", Statement: stmt.SQL, Err: err}
	}
	// The row may have been deleted since it was fetched.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return stmt, &QueryError{Op: "update", Statement: stmt.SQL, Err: ErrNotFound}
	}
	if err := tx.Commit(); err != nil {
		return stmt, &QueryError{Op: "update", Statement: stmt.SQL, Err: err}
	}
	return stmt, nil
}

// FormatValue renders a stored value as field text.
// NULL becomes the empty string so an untouched NULL field never differs.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return fmt.Sprintf("%g", val)
	case float32:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case sql.NullString:
		if val.Valid {
			return val.String
		}
		return ""
	case sql.NullInt64:
		if val.Valid {
			return strconv.FormatInt(val.Int64, 10)
		}
		return ""
	case sql.NullFloat64:
		if val.Valid {
			return fmt.Sprintf("%g", val.Float64)
		}
		return ""
	case sql.NullBool:
		if val.Valid {
			return FormatValue(val.Bool)
		}
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
