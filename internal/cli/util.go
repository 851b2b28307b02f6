package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// cmdWhoami shows current user information.
func (h *Handler) cmdWhoami(ctx *CommandContext) {
	if ctx.User == nil {
		fmt.Fprintln(ctx.Out, "Not authenticated")
		return
	}

	format := ctx.GetFlag("format")
	if format == "json" {
		info := map[string]any{
			"name":       ctx.User.DisplayName(),
			"admin":      ctx.User.IsAdmin,
			"anonymous":  ctx.User.IsAnonymous,
			"session_id": ctx.SessionID,
			"access":     ctx.Level().String(),
		}
		if ctx.User.PublicKeyFP != "" {
			info["public_key_fp"] = ctx.User.PublicKeyFP
		}
		printJSON(ctx.Out, info)
		return
	}

	fmt.Fprintf(ctx.Out, "User:\t%s\n", ctx.User.DisplayName())
	fmt.Fprintf(ctx.Out, "Admin:\t%v\n", ctx.User.IsAdmin)
	fmt.Fprintf(ctx.Out, "Anonymous:\t%v\n", ctx.User.IsAnonymous)
	if ctx.User.PublicKeyFP != "" {
		fmt.Fprintf(ctx.Out, "Key:\t%s\n", ctx.User.PublicKeyFP)
	}
	fmt.Fprintf(ctx.Out, "Access:\t%s\n", ctx.Level())
	if ctx.SessionID != "" {
		fmt.Fprintf(ctx.Out, "Session:\t%s\n", ctx.SessionID)
	}
}

// cmdHelp shows help information.
func (h *Handler) cmdHelp(ctx *CommandContext) {
	args := ctx.GetPositionalArgs()

	if len(args) > 0 {
		h.showCommandHelp(ctx, args[0])
		return
	}

	fmt.Fprintln(ctx.Out, `tableedit - look up, edit and save one record at a time

USAGE:
  tableedit [command] [arguments] [options]
  ssh host command [arguments] [options]

TABLE COMMANDS:
  info                             Show the configured table
  columns                          List the table's columns

RECORD COMMANDS:
  get <id>                         Show a record
  set <id> --set='{"col":"val"}'   Change fields (requires write access)

ADMIN COMMANDS (requires admin access):
  sessions                         List editor sessions
  history                          View the save history
  reload-config                    Reload access rules (SSH mode)

UTILITY COMMANDS:
  whoami                           Show current user info
  help [command]                   Show help
  version                          Show version

COMMON OPTIONS:
  --format=json                    Output in JSON format
  --limit=N                        Limit number of entries

Run 'help <command>' for detailed help on a specific command.`)
}

// showCommandHelp shows help for a specific command.
func (h *Handler) showCommandHelp(ctx *CommandContext, command string) {
	help := map[string]string{
		"get": `get - Show a record

USAGE:
  get <id> [--format=json|csv]

NULL values are shown as empty fields.

EXAMPLES:
  get 42
  get 42 --format=json`,

		"set": `set - Change fields of a record

USAGE:
  set <id> --set='{"column":"value"}' [--format=json]

Only fields whose text differs from the stored value are written, in a
single UPDATE. Values are trimmed. null clears a field to the empty string.

EXAMPLE:
  set 42 --set='{"name":"Jane","email":"jane@example.com"}'`,

		"history": `history - View the save history

USAGE:
  history [--limit=N] [--row=ID] [--session=ID] [--format=json]

Every save attempt is listed with its outcome: saved, no-changes, failed
or denied.`,

		"sessions": `sessions - List editor sessions

USAGE:
  sessions [--all] [--limit=N] [--format=json]

Without --all only active sessions are listed.`,
	}

	if h, ok := help[command]; ok {
		fmt.Fprintln(ctx.Out, h)
	} else {
		fmt.Fprintf(ctx.Out, "No detailed help available for '%s'\n", command)
	}
}

// cmdVersion shows version information.
func (h *Handler) cmdVersion(ctx *CommandContext) {
	format := ctx.GetFlag("format")
	if format == "json" {
		printJSON(ctx.Out, map[string]string{"version": h.version})
		return
	}
	fmt.Fprintf(ctx.Out, "tableedit %s\n", h.version)
}

// printJSON writes JSON to a writer.
func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// printCSV writes CSV-like output.
func printCSV(w io.Writer, headers []string, rows [][]string) {
	// Print headers
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprint(w, escapeCSV(h))
	}
	fmt.Fprintln(w)

	// Print rows
	for _, row := range rows {
		for i, val := range row {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, escapeCSV(val))
		}
		fmt.Fprintln(w)
	}
}

// escapeCSV escapes a value for CSV output.
func escapeCSV(s string) string {
	needsQuotes := false
	for _, c := range s {
		if c == ',' || c == '"' || c == '\n' || c == '\r' {
			needsQuotes = true
			break
		}
	}
	if !needsQuotes {
		return s
	}
	// Escape quotes by doubling them
	escaped := ""
	for _, c := range s {
		if c == '"' {
			escaped += "\"\""
		} else {
			escaped += string(c)
		}
	}
	return "\"" + escaped + "\""
}
