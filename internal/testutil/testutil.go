// Package testutil provides test utilities for tableedit tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	sqle "github.com/dolthub/go-mysql-server"
	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/server"
	gmssql "github.com/dolthub/go-mysql-server/sql"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// UsersSchema creates the users table used throughout the tests.
const UsersSchema = `CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	name VARCHAR(64),
	email VARCHAR(128)
)`

// UsersRows are the rows inserted by SeedUsers.
var UsersRows = [][]any{
	{1, "Ann", "a@x.io"},
	{2, "Bob", "b@x.io"},
	{3, "Cy", nil},
}

// SeedUsers creates and fills the users table.
func SeedUsers(t *testing.T, db *sql.DB) {
	t.Helper()
	MustExec(t, db, UsersSchema)
	for _, row := range UsersRows {
		MustExec(t, db, "INSERT INTO users (id, name, email) VALUES (?, ?, ?)", row...)
	}
}

// UsersDB creates a temporary SQLite database holding the users table.
// The database is removed with the test's temp dir.
func UsersDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "users.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()

	SeedUsers(t, db)
	return dbPath
}

// OpenSQLite opens a SQLite database for assertions.
func OpenSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// MySQLServer is an in-memory MySQL-compatible server for tests.
type MySQLServer struct {
	Host     string
	Port     int
	Database string
	server   *server.Server
}

// Params returns connection parameters in config file form.
func (s *MySQLServer) Params() map[string]any {
	return map[string]any{
		"host":     s.Host,
		"port":     s.Port,
		"user":     "root",
		"password": "",
		"database": s.Database,
	}
}

// DSN returns a go-sql-driver/mysql DSN for direct access.
func (s *MySQLServer) DSN() string {
	return fmt.Sprintf("root:@tcp(%s:%d)/%s?interpolateParams=true", s.Host, s.Port, s.Database)
}

// StartMySQL starts an in-memory MySQL server with an empty database
// and stops it when the test ends.
func StartMySQL(t *testing.T, database string) *MySQLServer {
	t.Helper()

	port, err := freePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	provider := memory.NewDBProvider(memory.NewDatabase(database))
	engine := sqle.NewDefault(provider)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	cfg := server.Config{
		Protocol: "tcp",
		Address:  addr,
	}
	s, err := server.NewServer(cfg, engine, gmssql.NewContext, memory.NewSessionBuilder(provider), nil)
	if err != nil {
		t.Fatalf("failed to create mysql server: %v", err)
	}
	go s.Start()
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("mysql server did not start: %v", ctx.Err())
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
			if err == nil {
				conn.Close()
				return &MySQLServer{Host: "127.0.0.1", Port: port, Database: database, server: s}
			}
		}
	}
}

// OpenMySQL opens a direct connection to the test server.
func OpenMySQL(t *testing.T, s *MySQLServer) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", s.DSN())
	if err != nil {
		t.Fatalf("failed to open mysql: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// CaptureOutput captures stdout and stderr from a function.
func CaptureOutput(fn func(out, errOut io.Writer)) (stdout, stderr string) {
	var outBuf, errBuf bytes.Buffer
	fn(&outBuf, &errBuf)
	return outBuf.String(), errBuf.String()
}

// MustExec executes SQL or fails the test.
func MustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("MustExec failed: %v\nQuery: %s", err, query)
	}
}

// MustQueryRow executes a query and scans the first row into dest.
func MustQueryRow(t *testing.T, db *sql.DB, query string, args []any, dest ...any) {
	t.Helper()
	if err := db.QueryRow(query, args...).Scan(dest...); err != nil {
		t.Fatalf("MustQueryRow failed: %v\nQuery: %s", err, query)
	}
}
