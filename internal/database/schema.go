package database

import (
	"context"
	"database/sql"
)

// LoadColumns returns the table's column names in ordinal order.
// A table without columns, including a missing one, is a SchemaError.
func LoadColumns(ctx context.Context, db *sql.DB, d Dialect, table string) ([]string, error) {
	query, args := d.ColumnsQuery(table)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &SchemaError{Table: table, Err: err}
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &SchemaError{Table: table, Err: err}
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &SchemaError{Table: table, Err: err}
	}
	if len(columns) == 0 {
		return nil, &SchemaError{Table: table}
	}
	return columns, nil
}
