package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// cmdInfo shows the configured table and, for admins, the row locks
// currently held.
func (h *Handler) cmdInfo(ctx *CommandContext) {
	if !ctx.RequireRead() {
		return
	}

	ed := ctx.Editor
	mgr := ctx.DBManager

	format := ctx.GetFlag("format")
	if format == "json" {
		info := map[string]any{
			"table":   ed.Table(),
			"columns": len(ed.Columns()),
			"access":  ed.Level().String(),
		}
		if mgr != nil {
			info["driver"] = mgr.Driver()
			info["id_column"] = mgr.IDColumn()
		}
		printJSON(ctx.Out, info)
		return
	}

	if mgr != nil {
		fmt.Fprintf(ctx.Out, "Target:\t%s\n", mgr.Describe())
		fmt.Fprintf(ctx.Out, "ID column:\t%s\n", mgr.IDColumn())
	}
	fmt.Fprintf(ctx.Out, "Columns:\t%d\n", len(ed.Columns()))
	fmt.Fprintf(ctx.Out, "Access:\t%s\n", ed.Level())

	if mgr == nil || !ctx.Level().CanAdmin() {
		return
	}

	locks := mgr.GetLockManager().ListLocks()
	if len(locks) == 0 {
		return
	}
	rows := make([]string, 0, len(locks))
	for row := range locks {
		rows = append(rows, row)
	}
	sort.Strings(rows)

	fmt.Fprintln(ctx.Out, "\nLOCKED ROW\tHELD BY\tSINCE")
	for _, row := range rows {
		lock := locks[row]
		fmt.Fprintf(ctx.Out, "%s\t%s\t%s\n", row, lock.HeldBy, humanize.Time(lock.Since))
	}
}
