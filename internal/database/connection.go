// Package database connects to the configured SQL server and reads and
// updates single rows of the configured table.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Opener opens a database handle. Tests replace it to inject mocks.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Connector owns one lazily opened database handle.
//
// Ensure opens the handle on first use and replaces it when it no longer
// answers a ping. A failed open leaves the connector empty so the next
// call tries again.
type Connector struct {
	dialect Dialect
	dsn     string
	unused  []string
	open    Opener

	db *sql.DB
	mu sync.Mutex
}

// NewConnector builds a connector from a driver name and connection
// parameters. Nothing is opened until Ensure is called.
func NewConnector(driver string, params map[string]any) (*Connector, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	dsn, unused, err := dialect.DSN(params)
	if err != nil {
		return nil, fmt.Errorf("invalid %s connection parameters: %w", dialect.Name(), err)
	}

	return &Connector{
		dialect: dialect,
		dsn:     dsn,
		unused:  unused,
		open:    sql.Open,
	}, nil
}

// SetOpener replaces the function used to open handles.
func (c *Connector) SetOpener(open Opener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

// Dialect returns the connector's SQL dialect.
func (c *Connector) Dialect() Dialect {
	return c.dialect
}

// UnusedParams lists connection parameters the dialect ignored.
func (c *Connector) UnusedParams() []string {
	return c.unused
}

// Connected reports whether a handle is currently held.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Ensure returns a live handle, opening or reopening it as needed.
func (c *Connector) Ensure(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		if err := c.db.PingContext(ctx); err == nil {
			return c.db, nil
		}
		c.db.Close()
		c.db = nil
	}

	db, err := c.open(c.dialect.DriverName(), c.dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: c.dialect.Name(), Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Driver: c.dialect.Name(), Err: err}
	}

	if c.dialect.Name() == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	c.db = db
	return db, nil
}

// Close releases the handle, if any.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
