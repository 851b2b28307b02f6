// Package cli implements the command-line interface for both SSH and local modes.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/ssh"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/editor"
	"github.com/johan-st/tableedit/internal/history"
	"github.com/johan-st/tableedit/internal/server"
)

// Handler handles CLI commands over SSH or locally.
type Handler struct {
	dbManager    *database.Manager
	historyStore *history.Store
	version      string
	reload       func() ([]string, error)
}

// NewHandler creates a new CLI handler.
func NewHandler(dbManager *database.Manager, historyStore *history.Store, version string) *Handler {
	return &Handler{
		dbManager:    dbManager,
		historyStore: historyStore,
		version:      version,
	}
}

// SetReloadFunc enables the reload-config command. fn returns the names of
// settings that changed but cannot be applied without a restart.
func (h *Handler) SetReloadFunc(fn func() ([]string, error)) {
	h.reload = fn
}

// LocalContext wraps command execution for local (non-SSH) mode.
type LocalContext struct {
	User      *access.UserInfo
	Editor    *editor.Editor
	SessionID string
	Args      []string
	Out       io.Writer
	Err       io.Writer
}

// NewLocalContext creates a context for local CLI execution.
func NewLocalContext(user *access.UserInfo, ed *editor.Editor, args []string, out, errOut io.Writer) *LocalContext {
	return &LocalContext{
		User:   user,
		Editor: ed,
		Args:   args,
		Out:    out,
		Err:    errOut,
	}
}

// HandleLocal processes a CLI command in local mode (no SSH session).
func (h *Handler) HandleLocal(lctx *LocalContext) error {
	if len(lctx.Args) == 0 {
		fmt.Fprintln(lctx.Out, "No command specified. Run 'help' for usage.")
		return nil
	}

	ctx := &CommandContext{
		User:         lctx.User,
		SessionID:    lctx.SessionID,
		Editor:       lctx.Editor,
		DBManager:    h.dbManager,
		HistoryStore: h.historyStore,
		Args:         lctx.Args[1:],
		Out:          lctx.Out,
		Err:          lctx.Err,
	}

	h.routeCommand(lctx.Args[0], ctx)

	if ctx.exitCode != 0 {
		return fmt.Errorf("command failed with exit code %d", ctx.exitCode)
	}
	return nil
}

// Handle processes an SSH session with a CLI command.
func (h *Handler) Handle(s ssh.Session) {
	cmd := s.Command()
	if len(cmd) == 0 {
		fmt.Fprintln(s, "No command specified. Run 'help' for usage.")
		return
	}

	ctx := &CommandContext{
		User:         server.GetUserFromContext(s.Context()),
		Editor:       server.GetEditorFromSSH(s),
		DBManager:    server.GetDBManagerFromSSH(s),
		HistoryStore: server.GetHistoryFromSSH(s),
		Args:         cmd[1:],
		Out:          s,
		Err:          s.Stderr(),
	}
	if session := server.GetSessionFromSSH(s); session != nil {
		ctx.SessionID = session.ID
	}
	if ctx.DBManager == nil {
		ctx.DBManager = h.dbManager
	}
	if ctx.HistoryStore == nil {
		ctx.HistoryStore = h.historyStore
	}

	h.routeCommand(cmd[0], ctx)

	if ctx.exitCode != 0 {
		s.Exit(ctx.exitCode)
	}
}

// routeCommand routes a command to its handler.
func (h *Handler) routeCommand(cmd string, ctx *CommandContext) {
	switch cmd {
	// Table commands
	case "info":
		h.cmdInfo(ctx)
	case "columns":
		h.cmdColumns(ctx)

	// Record commands
	case "get":
		h.cmdGet(ctx)
	case "set":
		h.cmdSet(ctx)

	// Admin commands
	case "sessions":
		h.cmdSessions(ctx)
	case "history":
		h.cmdHistory(ctx)
	case "reload-config":
		h.cmdReloadConfig(ctx)

	// Utility commands
	case "whoami":
		h.cmdWhoami(ctx)
	case "help":
		h.cmdHelp(ctx)
	case "version":
		h.cmdVersion(ctx)

	default:
		fmt.Fprintf(ctx.Err, "Unknown command: %s\n", cmd)
		fmt.Fprintln(ctx.Err, "Run 'help' for usage.")
		ctx.Exit(1)
	}
}

// CommandContext provides context for command execution.
type CommandContext struct {
	User         *access.UserInfo
	SessionID    string
	Editor       *editor.Editor
	DBManager    *database.Manager
	HistoryStore *history.Store
	Args         []string
	Out          io.Writer
	Err          io.Writer
	exitCode     int
}

// Exit sets the exit code (used instead of calling Session.Exit directly).
func (c *CommandContext) Exit(code int) {
	c.exitCode = code
}

// Fail prints an error and sets exit code 1.
func (c *CommandContext) Fail(format string, args ...any) {
	fmt.Fprintf(c.Err, format+"\n", args...)
	c.Exit(1)
}

// RequireArg ensures an argument is provided.
func (c *CommandContext) RequireArg(index int, name string) (string, bool) {
	args := c.GetPositionalArgs()
	if index >= len(args) {
		c.Fail("Missing required argument: %s", name)
		return "", false
	}
	return args[index], true
}

// GetFlag returns a flag value from args (e.g., --format=json).
func (c *CommandContext) GetFlag(name string) string {
	prefix := "--" + name + "="
	shortPrefix := "-" + name + "="
	for _, arg := range c.Args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
		if strings.HasPrefix(arg, shortPrefix) {
			return strings.TrimPrefix(arg, shortPrefix)
		}
	}
	return ""
}

// HasFlag checks if a boolean flag is present.
func (c *CommandContext) HasFlag(name string) bool {
	flag := "--" + name
	shortFlag := "-" + name
	for _, arg := range c.Args {
		if arg == flag || arg == shortFlag {
			return true
		}
	}
	return false
}

// GetPositionalArgs returns args that are not flags.
func (c *CommandContext) GetPositionalArgs() []string {
	var result []string
	for _, arg := range c.Args {
		if !strings.HasPrefix(arg, "-") {
			result = append(result, arg)
		}
	}
	return result
}

// Level returns the access level of the session's editor.
func (c *CommandContext) Level() access.Level {
	if c.Editor == nil {
		return access.None
	}
	return c.Editor.Level()
}

// RequireEditor checks that a record editor is available.
func (c *CommandContext) RequireEditor() bool {
	if c.Editor == nil {
		c.Fail("Database not available")
		return false
	}
	return true
}

// RequireRead checks if the user may look records up.
func (c *CommandContext) RequireRead() bool {
	if !c.RequireEditor() {
		return false
	}
	if !c.Level().CanRead() {
		c.Fail("Access denied: no read access to %s", c.Editor.Table())
		return false
	}
	return true
}

// RequireWrite checks if the user may save records.
func (c *CommandContext) RequireWrite() bool {
	if !c.RequireEditor() {
		return false
	}
	if !c.Level().CanWrite() {
		c.Fail("Access denied: no write access to %s", c.Editor.Table())
		return false
	}
	return true
}

// RequireAdmin checks if user has admin access.
func (c *CommandContext) RequireAdmin() bool {
	if !c.Level().CanAdmin() {
		c.Fail("Access denied: admin access required")
		return false
	}
	return true
}
