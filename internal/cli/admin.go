package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/johan-st/tableedit/internal/history"
)

// cmdSessions lists editor sessions, active ones by default.
func (h *Handler) cmdSessions(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}
	if ctx.HistoryStore == nil {
		ctx.Fail("Session history not available")
		return
	}

	sessions, err := ctx.HistoryStore.ListSessions(!ctx.HasFlag("all"), limitFlag(ctx, 50))
	if err != nil {
		ctx.Fail("Error fetching sessions: %v", err)
		return
	}

	format := ctx.GetFlag("format")
	if format == "json" {
		result := make([]map[string]any, 0, len(sessions))
		for _, s := range sessions {
			result = append(result, map[string]any{
				"id":          s.ID,
				"user":        s.DisplayName(),
				"mode":        s.Mode,
				"remote_addr": s.RemoteAddr,
				"created_at":  s.CreatedAt,
				"last_active": s.LastActiveAt,
				"active":      s.IsActive,
			})
		}
		printJSON(ctx.Out, result)
		return
	}

	if len(sessions) == 0 {
		fmt.Fprintln(ctx.Out, "No sessions")
		return
	}

	fmt.Fprintln(ctx.Out, "ID\tUSER\tMODE\tREMOTE\tSTARTED\tLAST ACTIVE")
	for _, s := range sessions {
		fmt.Fprintf(ctx.Out, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(s.ID),
			s.DisplayName(),
			s.Mode,
			s.RemoteAddr,
			humanize.Time(s.CreatedAt),
			humanize.Time(s.LastActiveAt))
	}
}

// cmdHistory shows the save audit log, newest first.
func (h *Handler) cmdHistory(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}
	if ctx.HistoryStore == nil {
		ctx.Fail("History not available")
		return
	}

	filter := history.SaveFilter{
		SessionID: ctx.GetFlag("session"),
		Limit:     limitFlag(ctx, 50),
	}
	if row := ctx.GetFlag("row"); row != "" {
		id, err := strconv.ParseInt(row, 10, 64)
		if err != nil {
			ctx.Fail("Invalid --row: %s", row)
			return
		}
		filter.RowID = id
	}
	if ctx.Editor != nil {
		filter.Table = ctx.Editor.Table()
	}

	saves, err := ctx.HistoryStore.ListSaves(filter)
	if err != nil {
		ctx.Fail("Error fetching history: %v", err)
		return
	}

	format := ctx.GetFlag("format")
	if format == "json" {
		printJSON(ctx.Out, saves)
		return
	}

	if len(saves) == 0 {
		fmt.Fprintln(ctx.Out, "No saves recorded")
		return
	}

	fmt.Fprintln(ctx.Out, "TIME\tROW\tOUTCOME\tCHANGES")
	for _, s := range saves {
		details := formatChanges(s.Changes)
		if s.Error != "" {
			details = s.Error
		}
		if len(details) > 60 {
			details = details[:57] + "..."
		}
		fmt.Fprintf(ctx.Out, "%s\t%d\t%s\t%s\n",
			humanize.Time(s.CreatedAt),
			s.RowID,
			s.Outcome,
			details)
	}
}

// cmdReloadConfig re-reads the access rules from the config file.
func (h *Handler) cmdReloadConfig(ctx *CommandContext) {
	if !ctx.RequireAdmin() {
		return
	}
	if h.reload == nil {
		ctx.Fail("reload-config is only available in SSH server mode")
		return
	}

	ignored, err := h.reload()
	if err != nil {
		ctx.Fail("Reload failed: %v", err)
		return
	}
	fmt.Fprintln(ctx.Out, "Access rules reloaded")
	if len(ignored) > 0 {
		fmt.Fprintf(ctx.Out, "Restart required to apply: %s\n", strings.Join(ignored, ", "))
	}
}

func limitFlag(ctx *CommandContext, def int) int {
	if l := ctx.GetFlag("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func formatChanges(changes map[string]string) string {
	cols := make([]string, 0, len(changes))
	for col := range changes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s=%q", col, changes[col])
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
