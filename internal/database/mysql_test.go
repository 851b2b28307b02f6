package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johan-st/tableedit/internal/testutil"
)

// TestMySQL_EndToEnd runs the MySQL dialect against an in-memory
// MySQL-compatible server over the real wire protocol.
func TestMySQL_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a MySQL server")
	}
	srv := testutil.StartMySQL(t, "shop")
	testutil.SeedUsers(t, testutil.OpenMySQL(t, srv))

	conn, err := NewConnector("mysql", srv.Params())
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	db, err := conn.Ensure(ctx)
	require.NoError(t, err)

	columns, err := LoadColumns(ctx, db, conn.Dialect(), "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, columns)

	row, err := FetchByID(ctx, db, conn.Dialect(), "users", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", FormatValue(row.Values["name"]))
	assert.Equal(t, "1", FormatValue(row.Values["id"]))

	_, err = FetchByID(ctx, db, conn.Dialect(), "users", "id", 999)
	assert.True(t, errors.Is(err, ErrNotFound))

	stmt, err := UpdateByID(ctx, db, conn.Dialect(), "users", "id", 1,
		[]Change{{Column: "name", Value: "Ann B"}})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `users` SET `name` = ? WHERE `id` = ?", stmt.SQL)

	row, err = FetchByID(ctx, db, conn.Dialect(), "users", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann B", FormatValue(row.Values["name"]))
	assert.Equal(t, "a@x.io", FormatValue(row.Values["email"]))

	_, err = LoadColumns(ctx, db, conn.Dialect(), "missing")
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}
