package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/editor"
)

// cmdGet looks a record up and prints its fields.
func (h *Handler) cmdGet(ctx *CommandContext) {
	raw, ok := ctx.RequireArg(0, "id")
	if !ok {
		return
	}
	if !ctx.RequireRead() {
		return
	}

	ed := ctx.Editor
	if !search(ctx, raw) {
		return
	}
	fields := ed.Fields()
	columns := ed.Columns()
	ed.Clear()

	switch ctx.GetFlag("format") {
	case "json":
		printJSON(ctx.Out, fields)
	case "csv":
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = fields[col]
		}
		printCSV(ctx.Out, columns, [][]string{values})
	default:
		for _, col := range columns {
			fmt.Fprintf(ctx.Out, "%s:\t%s\n", col, fields[col])
		}
	}
}

// cmdSet looks a record up, applies the given field values and saves the
// fields that differ from what is stored.
func (h *Handler) cmdSet(ctx *CommandContext) {
	raw, ok := ctx.RequireArg(0, "id")
	if !ok {
		return
	}
	if !ctx.RequireWrite() {
		return
	}

	setData := ctx.GetFlag("set")
	if setData == "" {
		ctx.Fail("Error: --set flag is required")
		return
	}
	values, err := parseSet(setData)
	if err != nil {
		ctx.Fail("Error parsing --set: %v", err)
		return
	}

	ed := ctx.Editor
	if !search(ctx, raw) {
		return
	}
	for _, col := range sortedKeys(values) {
		if err := ed.SetField(col, values[col]); err != nil {
			ed.Clear()
			ctx.Fail("Error: %v", err)
			return
		}
	}

	changes := ed.Changes()
	stmt, err := ed.Save(context.Background())
	format := ctx.GetFlag("format")

	switch {
	case errors.Is(err, editor.ErrNoChanges):
		if format == "json" {
			printJSON(ctx.Out, map[string]any{"id": raw, "changed": []string{}})
			return
		}
		fmt.Fprintln(ctx.Out, "No changes to save")
		return
	case err != nil:
		ctx.Fail("Save failed: %v", err)
		return
	}

	changed := make([]string, len(changes))
	for i, ch := range changes {
		changed[i] = ch.Column
	}
	if format == "json" {
		printJSON(ctx.Out, map[string]any{
			"id":        raw,
			"changed":   changed,
			"statement": stmt.SQL,
		})
		return
	}
	fmt.Fprintf(ctx.Out, "Updated %s: %s\n", strings.TrimSpace(raw), strings.Join(changed, ", "))
}

// search runs a lookup and reports failures on ctx.
func search(ctx *CommandContext, raw string) bool {
	err := ctx.Editor.Search(context.Background(), raw)

	var verr *editor.ValidationError
	switch {
	case err == nil:
		return true
	case errors.As(err, &verr):
		ctx.Fail("Error: %v", err)
	case errors.Is(err, database.ErrNotFound):
		ctx.Fail("Record not found: %s", strings.TrimSpace(raw))
	default:
		ctx.Fail("Search failed: %v", err)
	}
	return false
}

// parseSet decodes a JSON object of column values into the text the form
// would hold. null becomes the empty string.
func parseSet(data string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for col, v := range raw {
		switch v := v.(type) {
		case nil:
			values[col] = ""
		case string:
			values[col] = v
		case json.Number:
			values[col] = v.String()
		case bool:
			values[col] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("column %s: value must be a string, number, bool or null", col)
		}
	}
	return values, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
