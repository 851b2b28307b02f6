package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/config"
)

// Manager holds what every editor session of the process shares: the
// target table, its columns, the row lock table and the access resolver.
// Each session gets its own Connector from NewConnector.
type Manager struct {
	driver   string
	params   map[string]any
	table    string
	idColumn string

	columns     []string
	lockManager *LockManager
	resolver    *access.Resolver
	opener      Opener
	mu          sync.RWMutex
}

// NewManager creates a manager for the configured table.
func NewManager(cfg *config.Config) (*Manager, error) {
	if _, err := DialectFor(cfg.Driver); err != nil {
		return nil, err
	}

	return &Manager{
		driver:      cfg.Driver,
		params:      cfg.Params,
		table:       cfg.Table,
		idColumn:    cfg.Editor.IDColumn,
		lockManager: NewLockManager(),
		resolver:    cfg.BuildResolver(),
	}, nil
}

// Start connects once and loads the table's columns. Failure here is fatal
// to startup.
func (m *Manager) Start(ctx context.Context) error {
	conn, err := m.NewConnector()
	if err != nil {
		return err
	}
	defer conn.Close()

	db, err := conn.Ensure(ctx)
	if err != nil {
		return err
	}
	columns, err := LoadColumns(ctx, db, conn.Dialect(), m.table)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.columns = columns
	m.mu.Unlock()
	return nil
}

// NewConnector returns a fresh, unopened connector for one session.
func (m *Manager) NewConnector() (*Connector, error) {
	conn, err := NewConnector(m.driver, m.params)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	opener := m.opener
	m.mu.RUnlock()
	if opener != nil {
		conn.SetOpener(opener)
	}
	return conn, nil
}

// SetOpener makes every future connector open handles through open.
func (m *Manager) SetOpener(open Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opener = open
}

// Table returns the configured table name.
func (m *Manager) Table() string {
	return m.table
}

// IDColumn returns the column searched by id.
func (m *Manager) IDColumn() string {
	return m.idColumn
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.driver
}

// Columns returns the columns loaded by Start.
func (m *Manager) Columns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.columns...)
}

// GetLockManager returns the shared row lock manager.
func (m *Manager) GetLockManager() *LockManager {
	return m.lockManager
}

// UpdateResolver swaps the access resolver (called on config reload).
func (m *Manager) UpdateResolver(resolver *access.Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = resolver
}

// GetAccessLevel returns what user may do with the configured table.
func (m *Manager) GetAccessLevel(user *access.UserInfo) access.Level {
	m.mu.RLock()
	resolver := m.resolver
	m.mu.RUnlock()

	return resolver.Resolve(user, m.table)
}

// Describe returns a short human description of the target.
func (m *Manager) Describe() string {
	return fmt.Sprintf("%s table %q", m.driver, m.table)
}
