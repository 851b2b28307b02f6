package editor

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/database"
)

const selectUser = "SELECT * FROM `users` WHERE `id` = ?"

var userColumns = []string{"id", "name", "email"}

func newManager(t *testing.T, path string) *database.Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Driver = "sqlite"
	cfg.Table = "users"
	cfg.Params = map[string]any{"path": path}

	m, err := database.NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	return m
}

// newMockEditor returns a MySQL-dialect editor whose connections are the
// given sqlmock handles, in order.
func newMockEditor(t *testing.T, opts Options, handles ...*sql.DB) (*Editor, *fakeView) {
	t.Helper()
	conn, err := database.NewConnector("mysql", map[string]any{"user": "root"})
	require.NoError(t, err)

	next := 0
	conn.SetOpener(func(driverName, dsn string) (*sql.DB, error) {
		require.Less(t, next, len(handles), "unexpected reconnect")
		db := handles[next]
		next++
		return db, nil
	})

	view := &fakeView{}
	opts.View = view
	e := New(conn, opts)
	e.SetSchema(userColumns)
	return e, view
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return db, mock
}

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func annRow() *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).AddRow(int64(1), "Ann", "a@x.io")
}

func TestMock_ExactUpdateStatement(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET `email` = ? WHERE `id` = ?").
		WithArgs("ann@x.io", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e, _ := newMockEditor(t, DefaultOptions("users"), db)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	require.NoError(t, e.SetField("email", "ann@x.io"))
	_, err := e.Save(ctx)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_IdenticalBufferWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())

	e, _ := newMockEditor(t, DefaultOptions("users"), db)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	_, err := e.Save(ctx)
	assert.ErrorIs(t, err, ErrNoChanges)

	// An unexpected Begin or Exec would fail here.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_SecondSaveAfterRefetchWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET `email` = ? WHERE `id` = ?").
		WithArgs("ann@x.io", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(1), "Ann", "ann@x.io"))

	e, _ := newMockEditor(t, DefaultOptions("users"), db)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	require.NoError(t, e.SetField("email", "ann@x.io"))
	_, err := e.Save(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Search(ctx, "1"))
	assert.Equal(t, "ann@x.io", e.Field("email"))

	_, err = e.Save(ctx)
	assert.ErrorIs(t, err, ErrNoChanges)

	// A second Begin or Exec would be unexpected.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_InvalidInputRunsNoQuery(t *testing.T) {
	db, mock := newMock(t)
	e, _ := newMockEditor(t, DefaultOptions("users"), db)

	for _, input := range []string{"", "abc"} {
		var verr *ValidationError
		assert.ErrorAs(t, e.Search(context.Background(), input), &verr)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_SearchErrorLeavesFormEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
	mock.ExpectQuery(selectUser).WithArgs(int64(2)).WillReturnError(errors.New("Lost connection to MySQL server"))

	e, view := newMockEditor(t, DefaultOptions("users"), db)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	err := e.Search(ctx, "2")

	var qErr *database.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.False(t, IsInformational(err))
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, "", e.Field("name"))
	assert.False(t, view.saveEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_SearchErrorRestoresWhenConfigured(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
	mock.ExpectQuery(selectUser).WithArgs(int64(2)).WillReturnError(errors.New("timeout"))

	opts := DefaultOptions("users")
	opts.RestoreOnSearchError = true
	e, view := newMockEditor(t, opts, db)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	require.NoError(t, e.SetField("name", "edited"))
	require.Error(t, e.Search(ctx, "2"))

	assert.Equal(t, RecordLoaded, e.State())
	assert.Equal(t, "edited", e.Field("name"))
	assert.Equal(t, "edited", view.shown["name"])
	assert.True(t, view.saveEnabled)
	id, ok := e.CurrentID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestMock_FailedSave(t *testing.T) {
	tests := []struct {
		name       string
		clear      bool
		wantState  State
		wantSaveOn bool
	}{
		{"clears by default", true, Idle, false},
		{"keeps edits when configured", false, RecordLoaded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
			mock.ExpectBegin()
			mock.ExpectExec("UPDATE `users` SET `name` = ? WHERE `id` = ?").
				WithArgs("Ann B", int64(1)).
				WillReturnError(errors.New("Deadlock found"))
			mock.ExpectRollback()

			opts := DefaultOptions("users")
			opts.ClearOnFailedSave = tt.clear
			e, view := newMockEditor(t, opts, db)
			ctx := context.Background()

			require.NoError(t, e.Search(ctx, "1"))
			require.NoError(t, e.SetField("name", "Ann B"))

			_, err := e.Save(ctx)
			var qErr *database.QueryError
			require.ErrorAs(t, err, &qErr)
			assert.Equal(t, tt.wantState, e.State())
			assert.Equal(t, tt.wantSaveOn, view.saveEnabled)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMock_ReconnectBetweenOperations(t *testing.T) {
	db1, mock1 := newPingMock(t)
	db2, mock2 := newPingMock(t)

	mock1.ExpectPing()
	mock1.ExpectQuery(selectUser).WithArgs(int64(1)).WillReturnRows(annRow())
	mock1.ExpectPing().WillReturnError(errors.New("server has gone away"))
	mock1.ExpectClose()

	mock2.ExpectPing()
	mock2.ExpectBegin()
	mock2.ExpectExec("UPDATE `users` SET `name` = ? WHERE `id` = ?").
		WithArgs("Ann B", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock2.ExpectCommit()

	e, _ := newMockEditor(t, DefaultOptions("users"), db1, db2)
	ctx := context.Background()

	require.NoError(t, e.Search(ctx, "1"))
	require.NoError(t, e.SetField("name", "Ann B"))
	_, err := e.Save(ctx)
	require.NoError(t, err)

	assert.NoError(t, mock1.ExpectationsWereMet())
	assert.NoError(t, mock2.ExpectationsWereMet())
}

func TestMock_ConnectionFailureIsReturned(t *testing.T) {
	conn, err := database.NewConnector("mysql", nil)
	require.NoError(t, err)
	conn.SetOpener(func(string, string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})

	view := &fakeView{}
	opts := DefaultOptions("users")
	opts.View = view
	e := New(conn, opts)
	e.SetSchema(userColumns)

	err = e.Search(context.Background(), "1")
	var connErr *database.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, Idle, e.State())
	assert.False(t, view.saveEnabled)
}

func TestSearch_WithoutSchema(t *testing.T) {
	conn, err := database.NewConnector("mysql", nil)
	require.NoError(t, err)
	e := New(conn, DefaultOptions("users"))

	assert.ErrorIs(t, e.Search(context.Background(), "1"), ErrNoSchema)
}
