package cli

import "fmt"

// cmdColumns lists the table's columns in order.
func (h *Handler) cmdColumns(ctx *CommandContext) {
	if !ctx.RequireRead() {
		return
	}

	columns := ctx.Editor.Columns()

	format := ctx.GetFlag("format")
	if format == "json" {
		printJSON(ctx.Out, map[string]any{
			"table":   ctx.Editor.Table(),
			"columns": columns,
		})
		return
	}

	fmt.Fprintf(ctx.Out, "Table: %s\n\n", ctx.Editor.Table())
	fmt.Fprintln(ctx.Out, "#\tCOLUMN")
	for i, col := range columns {
		fmt.Fprintf(ctx.Out, "%d\t%s\n", i+1, col)
	}
}
