package database

import (
	"context"
	"errors"
	"testing"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/testutil"
)

func sqliteConfig(t *testing.T, table string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Driver = "sqlite"
	cfg.Table = table
	cfg.Params = map[string]any{"path": testutil.UsersDB(t)}
	return cfg
}

func TestManager_Start(t *testing.T) {
	m, err := NewManager(sqliteConfig(t, "users"))
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	columns := m.Columns()
	if len(columns) != 3 || columns[0] != "id" {
		t.Errorf("Columns() = %v", columns)
	}
	columns[0] = "mutated"
	if m.Columns()[0] != "id" {
		t.Error("Columns() must return a copy")
	}

	if m.Table() != "users" || m.IDColumn() != "id" || m.Driver() != "sqlite" {
		t.Errorf("accessors = %q %q %q", m.Table(), m.IDColumn(), m.Driver())
	}
}

func TestManager_StartMissingTable(t *testing.T) {
	m, err := NewManager(sqliteConfig(t, "orders"))
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	err = m.Start(context.Background())
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Start() error = %v, want *SchemaError", err)
	}
}

func TestManager_StartUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Table = "users"
	cfg.Params = map[string]any{"host": "127.0.0.1", "port": 1, "connection_timeout": 1}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	err = m.Start(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Start() error = %v, want *ConnectionError", err)
	}
}

func TestManager_AccessLevel(t *testing.T) {
	cfg := sqliteConfig(t, "users")
	cfg.Users = []config.User{
		{Name: "ro", Access: []config.AccessRule{{Pattern: "users", Level: "read-only"}}},
		{Name: "rw", Access: []config.AccessRule{{Pattern: "*", Level: "read-write"}}},
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	tests := []struct {
		user *access.UserInfo
		want access.Level
	}{
		{&access.UserInfo{Name: "local", IsAdmin: true}, access.Admin},
		{&access.UserInfo{Name: "ro"}, access.ReadOnly},
		{&access.UserInfo{Name: "rw"}, access.ReadWrite},
		{&access.UserInfo{Name: "stranger"}, access.None},
	}
	for _, tt := range tests {
		if got := m.GetAccessLevel(tt.user); got != tt.want {
			t.Errorf("GetAccessLevel(%s) = %v, want %v", tt.user.Name, got, tt.want)
		}
	}

	resolver := access.NewResolver()
	resolver.SetAnonymousAccess(access.ReadOnly)
	m.UpdateResolver(resolver)
	if got := m.GetAccessLevel(&access.UserInfo{Name: "anon", IsAnonymous: true}); got != access.ReadOnly {
		t.Errorf("after UpdateResolver anonymous level = %v, want read-only", got)
	}
}

func TestNewManager_UnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Table = "users"
	cfg.Driver = "mssql"
	if _, err := NewManager(cfg); err == nil {
		t.Error("expected error for unknown driver")
	}
}
