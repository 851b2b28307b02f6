package editor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/history"
	"github.com/johan-st/tableedit/internal/testutil"
)

// fakeView records every callback.
type fakeView struct {
	calls       []string
	shown       map[string]string
	saveEnabled bool
}

func (v *fakeView) DisplayRow(values map[string]string) {
	v.calls = append(v.calls, "display")
	v.shown = values
}

func (v *fakeView) ClearDisplay() {
	v.calls = append(v.calls, "clear")
	v.shown = nil
}

func (v *fakeView) SetSaveEnabled(enabled bool) {
	v.calls = append(v.calls, "save:"+map[bool]string{true: "on", false: "off"}[enabled])
	v.saveEnabled = enabled
}

func (v *fakeView) displayed() int {
	n := 0
	for _, c := range v.calls {
		if c == "display" {
			n++
		}
	}
	return n
}

// fakeRecorder keeps audit entries in memory.
type fakeRecorder struct {
	saves []*history.SaveRecord
}

func (r *fakeRecorder) RecordSave(record *history.SaveRecord) error {
	r.saves = append(r.saves, record)
	return nil
}

// newUsersEditor returns an editor on a fresh SQLite users table.
func newUsersEditor(t *testing.T, opts Options) (*Editor, *fakeView, string) {
	t.Helper()
	path := testutil.UsersDB(t)

	conn, err := database.NewConnector("sqlite", map[string]any{"path": path})
	if err != nil {
		t.Fatalf("NewConnector() error: %v", err)
	}

	view := &fakeView{}
	opts.View = view
	e := New(conn, opts)
	t.Cleanup(func() { e.Close() })

	if err := e.LoadSchema(context.Background()); err != nil {
		t.Fatalf("LoadSchema() error: %v", err)
	}
	return e, view, path
}

func TestLoadSchema(t *testing.T) {
	e, _, _ := newUsersEditor(t, DefaultOptions("users"))

	if got := e.Columns(); !reflect.DeepEqual(got, []string{"id", "name", "email"}) {
		t.Errorf("Columns() = %v", got)
	}
	fields := e.Fields()
	if len(fields) != 3 {
		t.Fatalf("Fields() = %v, want one entry per column", fields)
	}
	for col, v := range fields {
		if v != "" {
			t.Errorf("field %s = %q, want empty", col, v)
		}
	}
	if e.State() != Idle {
		t.Errorf("State() = %v, want idle", e.State())
	}
}

func TestLoadSchema_MissingTable(t *testing.T) {
	path := testutil.UsersDB(t)
	conn, err := database.NewConnector("sqlite", map[string]any{"path": path})
	if err != nil {
		t.Fatal(err)
	}
	e := New(conn, DefaultOptions("orders"))
	defer e.Close()

	var schemaErr *database.SchemaError
	if err := e.LoadSchema(context.Background()); !errors.As(err, &schemaErr) {
		t.Errorf("LoadSchema() error = %v, want *SchemaError", err)
	}
}

func TestSearch_Found(t *testing.T) {
	e, view, _ := newUsersEditor(t, DefaultOptions("users"))

	if err := e.Search(context.Background(), " 1 "); err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	want := map[string]string{"id": "1", "name": "Ann", "email": "a@x.io"}
	if !reflect.DeepEqual(view.shown, want) {
		t.Errorf("displayed %v, want %v", view.shown, want)
	}
	if !reflect.DeepEqual(e.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", e.Fields(), want)
	}
	if !view.saveEnabled {
		t.Error("save should be enabled after a hit")
	}
	if id, ok := e.CurrentID(); !ok || id != 1 {
		t.Errorf("CurrentID() = %d, %v", id, ok)
	}
	if e.State() != RecordLoaded {
		t.Errorf("State() = %v", e.State())
	}
}

func TestSearch_NotFound(t *testing.T) {
	e, view, _ := newUsersEditor(t, DefaultOptions("users"))

	err := e.Search(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Search(999) error = %v, want ErrNotFound", err)
	}
	if view.displayed() != 0 {
		t.Error("displayRow must not be called on a miss")
	}
	if view.saveEnabled {
		t.Error("save must be disabled after a miss")
	}
	if e.State() != Idle || e.Record() != nil {
		t.Error("no record may be loaded after a miss")
	}
	if !IsInformational(err) {
		t.Error("a miss is informational")
	}
}

func TestSearch_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"letters", "abc"},
		{"trailing junk", "12x"},
		{"decimal", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, view, _ := newUsersEditor(t, DefaultOptions("users"))
			if err := e.Search(context.Background(), "2"); err != nil {
				t.Fatalf("Search(2) error: %v", err)
			}
			before := e.Fields()
			calls := len(view.calls)

			err := e.Search(context.Background(), tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Search(%q) error = %v, want *ValidationError", tt.input, err)
			}
			if !reflect.DeepEqual(e.Fields(), before) || e.State() != RecordLoaded {
				t.Error("invalid input must not change state")
			}
			if len(view.calls) != calls {
				t.Errorf("view called on invalid input: %v", view.calls[calls:])
			}
		})
	}
}

func TestSearch_ClearsBeforeNewLookup(t *testing.T) {
	e, view, _ := newUsersEditor(t, DefaultOptions("users"))
	ctx := context.Background()

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	e.SetField("name", "edited")
	view.calls = nil

	if err := e.Search(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	want := []string{"clear", "save:off", "display", "save:on"}
	if !reflect.DeepEqual(view.calls, want) {
		t.Errorf("view calls = %v, want %v", view.calls, want)
	}
	if e.Field("name") != "Bob" {
		t.Errorf("name = %q, want Bob", e.Field("name"))
	}

	if err := e.Search(ctx, "999"); !errors.Is(err, ErrNotFound) {
		t.Fatal(err)
	}
	if e.Field("name") != "" {
		t.Error("previous record must be gone after a miss")
	}
}

func TestSave_SingleField(t *testing.T) {
	rec := &fakeRecorder{}
	opts := DefaultOptions("users")
	opts.Recorder = rec
	opts.SessionID = "s1"
	e, view, path := newUsersEditor(t, opts)
	ctx := context.Background()

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetField("name", "Ann B"); err != nil {
		t.Fatal(err)
	}

	changes := e.Changes()
	if len(changes) != 1 || changes[0] != (database.Change{Column: "name", Value: "Ann B"}) {
		t.Fatalf("Changes() = %v", changes)
	}

	stmt, err := e.Save(ctx)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if stmt.SQL != `UPDATE "users" SET "name" = ? WHERE "id" = ?` {
		t.Errorf("statement = %q", stmt.SQL)
	}

	db := testutil.OpenSQLite(t, path)
	var name, email string
	testutil.MustQueryRow(t, db, "SELECT name, email FROM users WHERE id = ?", []any{1}, &name, &email)
	if name != "Ann B" || email != "a@x.io" {
		t.Errorf("row = (%q, %q), want (Ann B, a@x.io)", name, email)
	}

	if e.State() != Idle || view.saveEnabled || e.Field("name") != "" {
		t.Error("form must be cleared after a save")
	}

	if len(rec.saves) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(rec.saves))
	}
	got := rec.saves[0]
	if got.Outcome != history.OutcomeSaved || got.RowID != 1 || got.SessionID != "s1" ||
		got.Changes["name"] != "Ann B" || got.Statement != stmt.SQL {
		t.Errorf("audit entry = %+v", got)
	}
}

func TestSave_MultipleFieldsInColumnOrder(t *testing.T) {
	e, _, _ := newUsersEditor(t, DefaultOptions("users"))
	ctx := context.Background()

	if err := e.Search(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	e.SetField("email", " bob@new.io ")
	e.SetField("name", "Robert")

	stmt, err := e.Save(ctx)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `SET "name" = ?, "email" = ?`) {
		t.Errorf("statement = %q, want columns in schema order", stmt.SQL)
	}
	if !reflect.DeepEqual(stmt.Args, []any{"Robert", "bob@new.io", int64(2)}) {
		t.Errorf("args = %v", stmt.Args)
	}
}

func TestSave_NoChanges(t *testing.T) {
	rec := &fakeRecorder{}
	opts := DefaultOptions("users")
	opts.Recorder = rec
	e, view, _ := newUsersEditor(t, opts)
	ctx := context.Background()

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	e.SetField("name", "  Ann  ")

	_, err := e.Save(ctx)
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("Save() error = %v, want ErrNoChanges", err)
	}
	if e.State() != Idle || view.saveEnabled {
		t.Error("form must be cleared after nothing to save")
	}
	if len(rec.saves) != 1 || rec.saves[0].Outcome != history.OutcomeNoChanges {
		t.Errorf("audit = %+v", rec.saves)
	}
}

func TestSave_UntouchedNullIsNotAChange(t *testing.T) {
	e, _, _ := newUsersEditor(t, DefaultOptions("users"))
	ctx := context.Background()

	if err := e.Search(ctx, "3"); err != nil {
		t.Fatal(err)
	}
	if e.Field("email") != "" {
		t.Errorf("NULL email shown as %q", e.Field("email"))
	}
	if changes := e.Changes(); len(changes) != 0 {
		t.Errorf("Changes() = %v, want none", changes)
	}
	if _, err := e.Save(ctx); !errors.Is(err, ErrNoChanges) {
		t.Errorf("Save() error = %v, want ErrNoChanges", err)
	}
}

func TestSave_UntouchedWhitespaceIsNotAChange(t *testing.T) {
	e, _, path := newUsersEditor(t, DefaultOptions("users"))
	ctx := context.Background()

	db := testutil.OpenSQLite(t, path)
	testutil.MustExec(t, db, "UPDATE users SET name = ? WHERE id = 1", "Ann  ")

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save(ctx); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("Save() error = %v, want ErrNoChanges", err)
	}

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	e.SetField("email", "new@x.io")
	stmt, err := e.Save(ctx)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if stmt.SQL != `UPDATE "users" SET "email" = ? WHERE "id" = ?` {
		t.Errorf("statement = %q, want only email", stmt.SQL)
	}

	var name string
	testutil.MustQueryRow(t, db, "SELECT name FROM users WHERE id = 1", nil, &name)
	if name != "Ann  " {
		t.Errorf("name = %q, want it untouched", name)
	}
}

func TestSave_RowDeletedAfterSearch(t *testing.T) {
	rec := &fakeRecorder{}
	opts := DefaultOptions("users")
	opts.Recorder = rec
	e, view, path := newUsersEditor(t, opts)
	ctx := context.Background()

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	db := testutil.OpenSQLite(t, path)
	testutil.MustExec(t, db, "DELETE FROM users WHERE id = 1")

	e.SetField("name", "Ann B")
	_, err := e.Save(ctx)
	var qErr *database.QueryError
	if !errors.As(err, &qErr) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("Save() error = %v, want update *QueryError for a missing row", err)
	}
	if e.State() != Idle || view.saveEnabled {
		t.Error("form must be cleared after a failed save")
	}
	if len(rec.saves) != 1 || rec.saves[0].Outcome != history.OutcomeFailed {
		t.Errorf("audit = %+v, want one failed entry", rec.saves)
	}
}

func TestSave_NoRecord(t *testing.T) {
	e, view, _ := newUsersEditor(t, DefaultOptions("users"))

	calls := len(view.calls)
	if _, err := e.Save(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Save() error = %v, want ErrNoRecord", err)
	}
	if len(view.calls) != calls {
		t.Error("Save without a record must not touch the view")
	}

	if err := e.Search(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatal(err)
	}
	if _, err := e.Save(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Save() after a miss error = %v, want ErrNoRecord", err)
	}
}

func TestClear(t *testing.T) {
	e, view, _ := newUsersEditor(t, DefaultOptions("users"))

	if err := e.Search(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	e.Clear()
	first := e.Fields()
	e.Clear()

	if !reflect.DeepEqual(first, e.Fields()) {
		t.Error("Clear must be idempotent")
	}
	for col, v := range first {
		if v != "" {
			t.Errorf("field %s = %q after Clear", col, v)
		}
	}
	if e.State() != Idle || view.saveEnabled {
		t.Error("Clear must drop the record and disable save")
	}
}

func TestSetField_UnknownColumn(t *testing.T) {
	e, _, _ := newUsersEditor(t, DefaultOptions("users"))
	if err := e.SetField("nope", "x"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestReadOnly(t *testing.T) {
	rec := &fakeRecorder{}
	opts := DefaultOptions("users")
	opts.Level = access.ReadOnly
	opts.Recorder = rec
	e, view, _ := newUsersEditor(t, opts)
	ctx := context.Background()

	if err := e.Search(ctx, "1"); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if view.saveEnabled {
		t.Error("save must stay disabled for read-only sessions")
	}

	e.SetField("name", "nope")
	_, err := e.Save(ctx)
	var accessErr *AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("Save() error = %v, want *AccessError", err)
	}
	if len(rec.saves) != 1 || rec.saves[0].Outcome != history.OutcomeDenied {
		t.Errorf("audit = %+v", rec.saves)
	}
}

func TestNoAccess(t *testing.T) {
	opts := DefaultOptions("users")
	opts.Level = access.None
	e, _, _ := newUsersEditor(t, opts)

	var accessErr *AccessError
	if err := e.Search(context.Background(), "1"); !errors.As(err, &accessErr) {
		t.Errorf("Search() error = %v, want *AccessError", err)
	}
}

func TestSave_RowLockedByOtherSession(t *testing.T) {
	locks := database.NewLockManager()
	opts := DefaultOptions("users")
	opts.Locks = locks
	opts.SessionID = "mine"
	opts.User = &access.UserInfo{Name: "alice"}
	e, _, path := newUsersEditor(t, opts)
	ctx := context.Background()

	if err := locks.TryLock(database.RowKey("users", 1), "bob", "theirs"); err != nil {
		t.Fatal(err)
	}
	if err := e.Search(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	e.SetField("name", "Ann B")

	_, err := e.Save(ctx)
	var lockErr *database.LockError
	if !errors.As(err, &lockErr) || lockErr.HeldBy != "bob" {
		t.Fatalf("Save() error = %v, want *LockError held by bob", err)
	}

	var name string
	testutil.MustQueryRow(t, testutil.OpenSQLite(t, path), "SELECT name FROM users WHERE id = 1", nil, &name)
	if name != "Ann" {
		t.Errorf("name = %q, row must be unchanged", name)
	}
	if !locks.IsLocked(database.RowKey("users", 1)) {
		t.Error("other session's lock must survive")
	}
}

func TestForSession(t *testing.T) {
	cfgPath := testutil.UsersDB(t)
	m := newManager(t, cfgPath)

	e, err := ForSession(m, Options{User: &access.UserInfo{Name: "local", IsAdmin: true}})
	if err != nil {
		t.Fatalf("ForSession() error: %v", err)
	}
	defer e.Close()

	if e.Level() != access.Admin {
		t.Errorf("Level() = %v, want admin", e.Level())
	}
	if !reflect.DeepEqual(e.Columns(), []string{"id", "name", "email"}) {
		t.Errorf("Columns() = %v", e.Columns())
	}
	if err := e.Search(context.Background(), "2"); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if e.Field("name") != "Bob" {
		t.Errorf("name = %q", e.Field("name"))
	}
}
