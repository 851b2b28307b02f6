// Package editor implements the record editor: look a row up by id, edit
// its fields as text, and write back only the fields that changed.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/history"
)

// State is where the editor is in its search/save cycle.
type State int

const (
	// Idle means no record is loaded.
	Idle State = iota
	// RecordLoaded means a search succeeded and the fields hold its values.
	RecordLoaded
)

func (s State) String() string {
	if s == RecordLoaded {
		return "record-loaded"
	}
	return "idle"
}

// Recorder stores audit entries for save attempts.
type Recorder interface {
	RecordSave(record *history.SaveRecord) error
}

// Options configures an Editor.
type Options struct {
	Table    string
	IDColumn string

	// RestoreOnSearchError puts the previous record back when a lookup
	// fails instead of leaving the form empty.
	RestoreOnSearchError bool
	// ClearOnFailedSave empties the form after a failed update too.
	ClearOnFailedSave bool

	Level     access.Level
	User      *access.UserInfo
	SessionID string

	Locks    *database.LockManager
	Recorder Recorder
	Logger   Logger
	View     View
}

// DefaultOptions returns options for a local read-write editor on table.
func DefaultOptions(table string) Options {
	return Options{
		Table:             table,
		IDColumn:          "id",
		ClearOnFailedSave: true,
		Level:             access.ReadWrite,
	}
}

// Editor edits one row at a time of one table.
//
// The editor owns its connection. The current record is absent until a
// search finds a row, and the field buffer always holds one entry per
// column.
type Editor struct {
	conn *database.Connector
	opts Options

	columns []string
	record  map[string]any
	buffer  map[string]string
	lastID  int64

	mu sync.Mutex
}

// New creates an editor. Columns are loaded with LoadSchema or set with
// SetSchema before the first search.
func New(conn *database.Connector, opts Options) *Editor {
	if opts.IDColumn == "" {
		opts.IDColumn = "id"
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.View == nil {
		opts.View = nopView{}
	}
	return &Editor{
		conn:   conn,
		opts:   opts,
		buffer: make(map[string]string),
	}
}

// ForSession creates an editor for one session of a running manager. The
// columns come from the manager and the access level from its resolver.
func ForSession(m *database.Manager, opts Options) (*Editor, error) {
	conn, err := m.NewConnector()
	if err != nil {
		return nil, err
	}

	opts.Table = m.Table()
	opts.IDColumn = m.IDColumn()
	opts.Level = m.GetAccessLevel(opts.User)
	if opts.Locks == nil {
		opts.Locks = m.GetLockManager()
	}

	e := New(conn, opts)
	if columns := m.Columns(); len(columns) > 0 {
		e.SetSchema(columns)
	}
	return e, nil
}

// SetView replaces the view. A nil view discards callbacks.
func (e *Editor) SetView(v View) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v == nil {
		v = nopView{}
	}
	e.opts.View = v
}

// Close releases the connection.
func (e *Editor) Close() error {
	return e.conn.Close()
}

// LoadSchema connects and reads the table's columns in ordinal order.
func (e *Editor) LoadSchema(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.conn.Ensure(ctx)
	if err != nil {
		e.opts.Logger.Errorf("connection failed: %v", err)
		return err
	}
	columns, err := database.LoadColumns(ctx, db, e.conn.Dialect(), e.opts.Table)
	if err != nil {
		e.opts.Logger.Errorf("failed to load columns: %v", err)
		return err
	}
	e.setSchemaLocked(columns)
	return nil
}

// SetSchema sets the columns without querying, resetting the form.
func (e *Editor) SetSchema(columns []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setSchemaLocked(columns)
}

func (e *Editor) setSchemaLocked(columns []string) {
	e.columns = append([]string(nil), columns...)
	e.clearLocked()
}

// Columns returns the columns in ordinal order.
func (e *Editor) Columns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.columns...)
}

// Table returns the edited table.
func (e *Editor) Table() string {
	return e.opts.Table
}

// SessionID returns the id audit entries are recorded under.
func (e *Editor) SessionID() string {
	return e.opts.SessionID
}

// Level returns the session's access level.
func (e *Editor) Level() access.Level {
	return e.opts.Level
}

// State returns Idle or RecordLoaded.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record != nil {
		return RecordLoaded
	}
	return Idle
}

// CurrentID returns the id of the loaded record.
func (e *Editor) CurrentID() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastID, e.record != nil
}

// Record returns a copy of the stored values of the loaded record, or nil.
func (e *Editor) Record() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record == nil {
		return nil
	}
	out := make(map[string]any, len(e.record))
	for k, v := range e.record {
		out[k] = v
	}
	return out
}

// Field returns the edited text of a column.
func (e *Editor) Field(column string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer[column]
}

// Fields returns a copy of the field buffer.
func (e *Editor) Fields() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.buffer))
	for k, v := range e.buffer {
		out[k] = v
	}
	return out
}

// SetField sets the edited text of a column.
func (e *Editor) SetField(column, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buffer[column]; !ok {
		return fmt.Errorf("unknown column %q", column)
	}
	e.buffer[column] = value
	return nil
}

// Clear empties every field and drops the loaded record. No I/O.
func (e *Editor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Editor) clearLocked() {
	e.record = nil
	e.lastID = 0
	e.buffer = make(map[string]string, len(e.columns))
	for _, col := range e.columns {
		e.buffer[col] = ""
	}
}

// ParseID validates search input: trimmed, non-empty, a base-10 integer.
func ParseID(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, &ValidationError{}
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, &ValidationError{Input: text}
	}
	return id, nil
}

// Search loads the row with the given id.
//
// Bad input returns a *ValidationError without touching state or the
// database. Otherwise the form is cleared first. A hit fills the fields and
// enables save, a miss returns ErrNotFound with save disabled, and a
// failure leaves the form empty unless RestoreOnSearchError is set.
func (e *Editor) Search(ctx context.Context, raw string) error {
	id, err := ParseID(raw)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opts.Level.CanRead() {
		return &AccessError{Op: "search", Level: e.opts.Level}
	}
	if len(e.columns) == 0 {
		return ErrNoSchema
	}

	prevRecord, prevBuffer, prevID := e.record, e.buffer, e.lastID
	e.clearLocked()
	e.opts.View.ClearDisplay()
	e.opts.View.SetSaveEnabled(false)

	row, err := e.fetch(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		e.opts.Logger.Infof("record %d not found in %s", id, e.opts.Table)
		return ErrNotFound
	case err != nil:
		e.opts.Logger.Errorf("search for %d failed: %v", id, err)
		if e.opts.RestoreOnSearchError && prevRecord != nil {
			e.record, e.buffer, e.lastID = prevRecord, prevBuffer, prevID
			e.opts.View.DisplayRow(e.copyBuffer())
			e.opts.View.SetSaveEnabled(e.opts.Level.CanWrite())
		}
		return err
	}

	e.record = row.Values
	e.lastID = id
	for _, col := range e.columns {
		e.buffer[col] = database.FormatValue(row.Values[col])
	}
	e.opts.View.DisplayRow(e.copyBuffer())
	e.opts.View.SetSaveEnabled(e.opts.Level.CanWrite())
	return nil
}

func (e *Editor) fetch(ctx context.Context, id int64) (*database.Row, error) {
	db, err := e.conn.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return database.FetchByID(ctx, db, e.conn.Dialect(), e.opts.Table, e.opts.IDColumn, id)
}

// Changes returns the columns whose trimmed text differs from the trimmed
// stored value, in column order. It is empty without a loaded record.
func (e *Editor) Changes() []database.Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changesLocked()
}

func (e *Editor) changesLocked() []database.Change {
	if e.record == nil {
		return nil
	}
	var changes []database.Change
	for _, col := range e.columns {
		text := strings.TrimSpace(e.buffer[col])
		if text != strings.TrimSpace(database.FormatValue(e.record[col])) {
			changes = append(changes, database.Change{Column: col, Value: text})
		}
	}
	return changes
}

// Save writes the changed fields of the loaded record in one UPDATE.
//
// Without a record it returns ErrNoRecord and does nothing. With nothing
// changed it returns ErrNoChanges and clears the form. After a successful
// update the form is cleared; after a failed one it is cleared only when
// ClearOnFailedSave is set. The executed statement is returned.
func (e *Editor) Save(ctx context.Context) (database.Statement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return database.Statement{}, ErrNoRecord
	}

	id := e.lastID
	changes := e.changesLocked()
	audit := &history.SaveRecord{
		SessionID: e.opts.SessionID,
		Table:     e.opts.Table,
		RowID:     id,
		Changes:   changeMap(changes),
	}

	if !e.opts.Level.CanWrite() {
		err := &AccessError{Op: "save", Level: e.opts.Level}
		audit.Outcome = history.OutcomeDenied
		audit.Error = err.Error()
		e.writeAudit(audit)
		return database.Statement{}, err
	}

	if len(changes) == 0 {
		e.opts.Logger.Infof("no changes to save for record %d", id)
		audit.Outcome = history.OutcomeNoChanges
		e.writeAudit(audit)
		e.resetLocked()
		return database.Statement{}, ErrNoChanges
	}

	stmt, err := e.update(ctx, id, changes)
	audit.Statement = stmt.SQL
	if err != nil {
		if database.IsBusyError(err) {
			e.opts.Logger.Warnf("database busy while saving record %d", id)
		}
		e.opts.Logger.Errorf("save of record %d failed: %v", id, err)
		audit.Outcome = history.OutcomeFailed
		audit.Error = err.Error()
		e.writeAudit(audit)
		if e.opts.ClearOnFailedSave {
			e.resetLocked()
		}
		return stmt, err
	}

	e.opts.Logger.Infof("update done: %s", stmt)
	audit.Outcome = history.OutcomeSaved
	e.writeAudit(audit)
	e.resetLocked()
	return stmt, nil
}

func (e *Editor) update(ctx context.Context, id int64, changes []database.Change) (database.Statement, error) {
	var stmt database.Statement
	run := func() error {
		db, err := e.conn.Ensure(ctx)
		if err != nil {
			return err
		}
		stmt, err = database.UpdateByID(ctx, db, e.conn.Dialect(), e.opts.Table, e.opts.IDColumn, id, changes)
		return err
	}

	var err error
	if e.opts.Locks == nil {
		err = run()
	} else {
		err = e.opts.Locks.WithWriteLock(database.RowKey(e.opts.Table, id),
			e.opts.User.DisplayName(), e.opts.SessionID, run)
	}
	return stmt, err
}

// resetLocked clears the form and tells the view.
func (e *Editor) resetLocked() {
	e.clearLocked()
	e.opts.View.ClearDisplay()
	e.opts.View.SetSaveEnabled(false)
}

// writeAudit stores an audit entry. Failures are logged, never returned.
func (e *Editor) writeAudit(audit *history.SaveRecord) {
	if e.opts.Recorder == nil {
		return
	}
	if err := e.opts.Recorder.RecordSave(audit); err != nil {
		e.opts.Logger.Warnf("failed to record save audit: %v", err)
	}
}

func (e *Editor) copyBuffer() map[string]string {
	out := make(map[string]string, len(e.buffer))
	for k, v := range e.buffer {
		out[k] = v
	}
	return out
}

func changeMap(changes []database.Change) map[string]string {
	if len(changes) == 0 {
		return nil
	}
	m := make(map[string]string, len(changes))
	for _, ch := range changes {
		m[ch.Column] = ch.Value
	}
	return m
}
