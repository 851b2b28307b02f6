package database

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Dialect covers what differs between the supported SQL servers.
type Dialect interface {
	// Name is the configured driver name.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// DSN builds a data source name from opaque connection parameters.
	// Parameters the dialect does not understand are returned as unused.
	DSN(params map[string]any) (dsn string, unused []string, err error)
	// Quote quotes an identifier.
	Quote(ident string) string
	// Placeholder returns the bind marker for the n-th argument, from 1.
	Placeholder(n int) string
	// ColumnsQuery returns a query yielding the table's column names in
	// ordinal order, one per row.
	ColumnsQuery(table string) (string, []any)
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "", "mysql":
		return mysqlDialect{}, nil
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) DSN(params map[string]any) (string, []string, error) {
	p := newParamReader(params)

	cfg := mysql.NewConfig()
	cfg.User = p.str("user", "username")
	cfg.Passwd = p.str("password", "passwd")
	cfg.DBName = p.str("database", "db", "dbname")
	// Report matched rows, not changed rows, so a vanished row is detected.
	cfg.ClientFoundRows = true

	if socket := p.str("unix_socket"); socket != "" {
		cfg.Net = "unix"
		cfg.Addr = socket
	} else {
		host := p.str("host")
		if host == "" {
			host = "127.0.0.1"
		}
		port := p.str("port")
		if port == "" {
			port = "3306"
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, port)
	}
	if charset := p.str("charset"); charset != "" {
		cfg.Params = map[string]string{"charset": charset}
	}
	if v := p.str("connection_timeout", "connect_timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return "", nil, fmt.Errorf("invalid connection_timeout %q: %w", v, err)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	return cfg.FormatDSN(), p.unused(), nil
}

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{table}
}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) DSN(params map[string]any) (string, []string, error) {
	p := newParamReader(params)

	pairs := []struct{ key, value string }{
		{"host", p.str("host")},
		{"port", p.str("port")},
		{"user", p.str("user", "username")},
		{"password", p.str("password", "passwd")},
		{"dbname", p.str("database", "dbname", "db")},
		{"sslmode", p.str("sslmode")},
		{"connect_timeout", p.str("connection_timeout", "connect_timeout")},
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if kv.value == "" {
			continue
		}
		parts = append(parts, kv.key+"="+quotePQValue(kv.value))
	}
	return strings.Join(parts, " "), p.unused(), nil
}

// quotePQValue quotes a libpq key/value connection string value.
func quotePQValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (postgresDialect) Quote(ident string) string { return quoteIdentifier(ident) }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, []any{table}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) DSN(params map[string]any) (string, []string, error) {
	p := newParamReader(params)

	path := p.str("path", "database", "file")
	if path == "" {
		return "", nil, fmt.Errorf("sqlite driver requires a path parameter")
	}
	busy := p.str("busy_timeout")
	if busy == "" {
		busy = "5000"
	}
	if _, err := strconv.Atoi(busy); err != nil {
		return "", nil, fmt.Errorf("invalid busy_timeout %q: %w", busy, err)
	}

	// The path is a URI path: '?' and '#' would end it early.
	uri := (&url.URL{Path: path}).EscapedPath()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%s)&_pragma=foreign_keys(1)", uri, busy)
	return dsn, p.unused(), nil
}

func (sqliteDialect) Quote(ident string) string { return quoteIdentifier(ident) }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`, []any{table}
}

// quoteIdentifier safely quotes a SQL identifier with double quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// paramReader reads connection parameters and remembers which were used.
type paramReader struct {
	params map[string]any
	used   map[string]bool
}

func newParamReader(params map[string]any) *paramReader {
	return &paramReader{params: params, used: make(map[string]bool)}
}

// str returns the first present key's value as a string.
func (p *paramReader) str(keys ...string) string {
	for _, k := range keys {
		v, ok := p.params[k]
		if !ok {
			continue
		}
		p.used[k] = true
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	return ""
}

func (p *paramReader) unused() []string {
	var out []string
	for k := range p.params {
		if !p.used[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
