// Package history records editor sessions and every save attempt in a
// local SQLite database.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages the history database.
type Store struct {
	db            *sql.DB
	nameGenerator *NameGenerator
}

// NewStore opens or creates history.db inside dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store := &Store{
		db:            db,
		nameGenerator: NewNameGenerator(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_name TEXT,
		public_key_fingerprint TEXT,
		anonymous_name TEXT,
		remote_addr TEXT,
		mode TEXT,
		created_at DATETIME,
		last_active_at DATETIME,
		is_active INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_is_active ON sessions(is_active);

	CREATE TABLE IF NOT EXISTS saves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		table_name TEXT NOT NULL,
		row_id INTEGER NOT NULL,
		changes TEXT,
		statement TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		created_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_saves_row ON saves(table_name, row_id);
	CREATE INDEX IF NOT EXISTS idx_saves_session_id ON saves(session_id);
	CREATE INDEX IF NOT EXISTS idx_saves_created_at ON saves(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// GenerateAnonymousName generates a new anonymous name.
func (s *Store) GenerateAnonymousName() string {
	return s.nameGenerator.Generate()
}

// CreateSession inserts a session record.
func (s *Store) CreateSession(session *Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, user_name, public_key_fingerprint, anonymous_name, remote_addr, mode, created_at, last_active_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, nullString(session.UserName), nullString(session.PublicKeyFingerprint),
		nullString(session.AnonymousName), session.RemoteAddr, session.Mode,
		session.CreatedAt, session.LastActiveAt, session.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSessionActivity updates the last active time for a session.
func (s *Store) UpdateSessionActivity(sessionID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_active_at = ? WHERE id = ?`, time.Now(), sessionID)
	return err
}

// EndSession marks a session as inactive.
func (s *Store) EndSession(sessionID string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET is_active = 0, last_active_at = ? WHERE id = ?
	`, time.Now(), sessionID)
	return err
}

const sessionColumns = `id, user_name, public_key_fingerprint, anonymous_name, remote_addr, mode, created_at, last_active_at, is_active`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var session Session
	var userName, pkFP, anonName, remoteAddr, mode sql.NullString
	var isActive int

	err := row.Scan(&session.ID, &userName, &pkFP, &anonName, &remoteAddr, &mode,
		&session.CreatedAt, &session.LastActiveAt, &isActive)
	if err != nil {
		return nil, err
	}

	session.UserName = userName.String
	session.PublicKeyFingerprint = pkFP.String
	session.AnonymousName = anonName.String
	session.RemoteAddr = remoteAddr.String
	session.Mode = mode.String
	session.IsActive = isActive == 1
	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// ListSessions lists sessions, most recently active first.
func (s *Store) ListSessions(activeOnly bool, limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := make([]any, 0)

	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY last_active_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// RecordSave records one save attempt.
func (s *Store) RecordSave(record *SaveRecord) error {
	var changes string
	if len(record.Changes) > 0 {
		data, err := json.Marshal(record.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode changes: %w", err)
		}
		changes = string(data)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO saves (session_id, table_name, row_id, changes, statement, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(record.SessionID), record.Table, record.RowID, nullString(changes),
		nullString(record.Statement), record.Outcome, nullString(record.Error), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record save: %w", err)
	}
	record.ID, _ = res.LastInsertId()

	if record.SessionID != "" {
		return s.UpdateSessionActivity(record.SessionID)
	}
	return nil
}

// SaveFilter narrows ListSaves. Zero fields match everything.
type SaveFilter struct {
	SessionID string
	Table     string
	RowID     int64
	Since     time.Time
	Limit     int
}

// ListSaves lists save attempts, newest first.
func (s *Store) ListSaves(filter SaveFilter) ([]*SaveRecord, error) {
	query := "SELECT id, session_id, table_name, row_id, changes, statement, outcome, error, created_at FROM saves WHERE 1=1"
	args := make([]any, 0)

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Table != "" {
		query += " AND table_name = ?"
		args = append(args, filter.Table)
	}
	if filter.RowID != 0 {
		query += " AND row_id = ?"
		args = append(args, filter.RowID)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SaveRecord
	for rows.Next() {
		var record SaveRecord
		var sessionID, changes, statement, errStr sql.NullString

		err := rows.Scan(&record.ID, &sessionID, &record.Table, &record.RowID, &changes,
			&statement, &record.Outcome, &errStr, &record.CreatedAt)
		if err != nil {
			return nil, err
		}

		record.SessionID = sessionID.String
		record.Statement = statement.String
		record.Error = errStr.String
		if changes.Valid {
			if err := json.Unmarshal([]byte(changes.String), &record.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode changes of save %d: %w", record.ID, err)
			}
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
