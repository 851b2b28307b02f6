// Package config loads the editor configuration and watches it for access changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/johan-st/tableedit/internal/access"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvTable       = "TABLEEDIT_TABLE"
	EnvDriver      = "TABLEEDIT_DRIVER"
	EnvParamPrefix = "TABLEEDIT_PARAM_"
)

// Config is the application configuration.
//
// Every top-level key that is not one of the named fields below is a
// connection parameter and lands in Params untouched, so the flat
// {"table": ..., "host": ..., "user": ...} layout works as is.
type Config struct {
	Table  string `yaml:"table" validate:"required"`
	Driver string `yaml:"driver" validate:"oneof=mysql postgres sqlite"`

	Editor EditorConfig `yaml:"editor"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`

	// Directory for the audit database and the SSH host key.
	DataDir string `yaml:"data_dir"`

	AnonymousAccess string         `yaml:"anonymous_access" validate:"omitempty,oneof=none read-only read-write"`
	AllowKeyless    bool           `yaml:"allow_keyless"`
	Users           []User         `yaml:"users" validate:"dive"`
	Public          []PublicTable  `yaml:"public" validate:"dive"`
	Params          map[string]any `yaml:",inline"`

	path    string
	modTime time.Time
	mu      sync.RWMutex
}

// EditorConfig holds the record editor's behaviour switches.
type EditorConfig struct {
	IDColumn             string `yaml:"id_column" validate:"required"`
	RestoreOnSearchError bool   `yaml:"restore_on_search_error"`
	ClearOnFailedSave    bool   `yaml:"clear_on_failed_save"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig configures SSH mode.
type ServerConfig struct {
	Listen      string `yaml:"listen" validate:"required,hostname_port"`
	HostKeyPath string `yaml:"host_key_path"`
	IdleTimeout string `yaml:"idle_timeout"`
	MaxTimeout  string `yaml:"max_timeout"`
}

// User is an SSH user and the table rules granted to it.
type User struct {
	Name       string       `yaml:"name" validate:"required"`
	Admin      bool         `yaml:"admin"`
	PublicKeys []string     `yaml:"public_keys"`
	Access     []AccessRule `yaml:"access" validate:"dive"`
}

// AccessRule grants Level on tables matching Pattern.
type AccessRule struct {
	Pattern string `yaml:"pattern" validate:"required"`
	Level   string `yaml:"level" validate:"oneof=none read-only read-write admin"`
}

// PublicTable grants Level on matching tables to everyone.
type PublicTable struct {
	Pattern string `yaml:"pattern" validate:"required"`
	Level   string `yaml:"level" validate:"oneof=none read-only read-write"`
}

// Error reports a configuration file that is missing or malformed.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var validate = validator.New()

// DefaultConfig returns a configuration with every optional field filled in.
func DefaultConfig() *Config {
	return &Config{
		Driver: "mysql",
		Editor: EditorConfig{
			IDColumn:          "id",
			ClearOnFailedSave: true,
		},
		Log: LogConfig{
			File:       "application.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Server: ServerConfig{
			Listen:      "localhost:2222",
			IdleTimeout: "30m",
			MaxTimeout:  "8h",
		},
		DataDir:         ".tableedit",
		AnonymousAccess: "none",
		Users:           []User{},
		Public:          []PublicTable{},
		Params:          map[string]any{},
	}
}

// Load reads, overrides from the environment and validates a config file.
// A .env file next to the config file is loaded first when present.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	envFile := filepath.Join(filepath.Dir(absPath), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, &Error{Path: envFile, Err: err}
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &Error{Path: absPath, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &Error{Path: absPath, Err: err}
	}
	cfg.path = absPath
	if info, err := os.Stat(absPath); err == nil {
		cfg.modTime = info.ModTime()
	}
	return cfg, nil
}

// Parse decodes YAML or JSON config data, applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]any{}
	}
	cfg.applyEnv(os.Environ())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides table, driver and connection parameters from env.
func (c *Config) applyEnv(environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case name == EnvTable:
			c.Table = value
		case name == EnvDriver:
			c.Driver = value
		case strings.HasPrefix(name, EnvParamPrefix) && len(name) > len(EnvParamPrefix):
			c.Params[strings.ToLower(strings.TrimPrefix(name, EnvParamPrefix))] = value
		}
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path returns the absolute path of the loaded file, or "" for parsed data.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// HasChanged reports whether the file was modified since it was last read.
func (c *Config) HasChanged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return info.ModTime().After(c.modTime)
}

// Reload re-reads the file and applies access-related fields only.
//
// The table, driver and connection parameters are fixed for the life of the
// process. Keys that changed among them are returned so the caller can warn.
func (c *Config) Reload() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, &Error{Path: c.path, Err: err}
	}
	next, err := Parse(data)
	if err != nil {
		return nil, &Error{Path: c.path, Err: err}
	}

	var ignored []string
	if next.Table != c.Table {
		ignored = append(ignored, "table")
	}
	if next.Driver != c.Driver {
		ignored = append(ignored, "driver")
	}
	if !reflect.DeepEqual(next.Params, c.Params) {
		ignored = append(ignored, "connection parameters")
	}

	c.AnonymousAccess = next.AnonymousAccess
	c.AllowKeyless = next.AllowKeyless
	c.Users = next.Users
	c.Public = next.Public

	if info, err := os.Stat(c.path); err == nil {
		c.modTime = info.ModTime()
	}
	return ignored, nil
}

// ParamKeys returns the connection parameter names in sorted order.
func (c *Config) ParamKeys() []string {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildResolver creates an access resolver from the user and public rules.
func (c *Config) BuildResolver() *access.Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resolver := access.NewResolver()
	resolver.SetAnonymousAccess(access.ParseLevel(c.AnonymousAccess))

	for _, pub := range c.Public {
		resolver.AddPublicRule(pub.Pattern, access.ParseLevel(pub.Level))
	}
	for _, user := range c.Users {
		if user.Admin {
			resolver.AddAdmin(user.Name)
		}
		for _, rule := range user.Access {
			resolver.AddUserRule(user.Name, rule.Pattern, access.ParseLevel(rule.Level))
		}
	}
	return resolver
}

// FindUser returns the configured user with the given name.
func (c *Config) FindUser(name string) *User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Users {
		if c.Users[i].Name == name {
			return &c.Users[i]
		}
	}
	return nil
}

// UsersSnapshot returns a copy of the configured users.
func (c *Config) UsersSnapshot() []User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]User(nil), c.Users...)
}

// KeylessAllowed reports whether keyboard-interactive logins are accepted.
func (c *Config) KeylessAllowed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AllowKeyless
}

// AnonymousAllowed reports whether unknown keys get an anonymous session.
func (c *Config) AnonymousAllowed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AllowKeyless || access.ParseLevel(c.AnonymousAccess) != access.None
}

// GetIdleTimeout parses the SSH idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.IdleTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetMaxTimeout parses the SSH max session length.
func (c *Config) GetMaxTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.MaxTimeout)
	if err != nil {
		return 8 * time.Hour
	}
	return d
}

// GetDataDir returns the data directory, defaulting to .tableedit.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return ".tableedit"
	}
	return c.DataDir
}

// GetHostKeyPath returns the SSH host key path, inside the data dir by default.
func (c *Config) GetHostKeyPath() string {
	if c.Server.HostKeyPath != "" {
		return c.Server.HostKeyPath
	}
	return filepath.Join(c.GetDataDir(), "host_key")
}
