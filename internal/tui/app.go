package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/editor"
)

// searchFocus is the focus index of the id field. Column fields follow it.
const searchFocus = 0

// App is the record editor form.
//
// Editor calls run synchronously inside Update, so a slow query holds the
// interface until it returns. The App is the editor's View and receives its
// callbacks during those calls.
type App struct {
	// Dependencies
	ctx    context.Context
	editor *editor.Editor
	user   *access.UserInfo

	// Window size
	width, height int

	// Form
	search  textinput.Model
	columns []string
	inputs  []textinput.Model
	focus   int

	saveEnabled bool

	// Status line
	status     string
	statusKind statusKind
	statusSeq  int

	// UI state
	showHelp bool
	help     help.Model

	// Key bindings
	keys KeyMap
}

// NewApp creates the form for ed and registers it as the editor's view.
func NewApp(ctx context.Context, ed *editor.Editor, user *access.UserInfo, width, height int) *App {
	search := textinput.New()
	search.Placeholder = "id"
	search.Prompt = ""
	search.CharLimit = 20
	search.TextStyle = inputTextStyle

	columns := ed.Columns()
	inputs := make([]textinput.Model, len(columns))
	for i := range columns {
		in := textinput.New()
		in.Prompt = ""
		in.TextStyle = inputTextStyle
		inputs[i] = in
	}

	app := &App{
		ctx:     ctx,
		editor:  ed,
		user:    user,
		width:   width,
		height:  height,
		search:  search,
		columns: columns,
		inputs:  inputs,
		help:    help.New(),
		keys:    DefaultKeyMap(),
	}
	app.updateSizes()
	app.updateFocus()
	ed.SetView(app)
	return app
}

// DisplayRow implements editor.View.
func (a *App) DisplayRow(values map[string]string) {
	for i, col := range a.columns {
		a.inputs[i].SetValue(values[col])
		a.inputs[i].CursorEnd()
	}
}

// ClearDisplay implements editor.View.
func (a *App) ClearDisplay() {
	for i := range a.inputs {
		a.inputs[i].SetValue("")
	}
}

// SetSaveEnabled implements editor.View.
func (a *App) SetSaveEnabled(enabled bool) {
	a.saveEnabled = enabled
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case clearStatusMsg:
		if msg.seq == a.statusSeq {
			a.status = ""
		}
		return a, nil
	}

	return a, a.updateFocused(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showHelp {
		if key.Matches(msg, a.keys.Help, a.keys.Clear) {
			a.showHelp = false
			return a, nil
		}
		if key.Matches(msg, a.keys.Quit) {
			return a, tea.Quit
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.showHelp = true
		return a, nil

	case key.Matches(msg, a.keys.NextField):
		a.focus = (a.focus + 1) % (len(a.inputs) + 1)
		a.updateFocus()
		return a, nil

	case key.Matches(msg, a.keys.PrevField):
		a.focus = (a.focus + len(a.inputs)) % (len(a.inputs) + 1)
		a.updateFocus()
		return a, nil

	case key.Matches(msg, a.keys.Clear):
		a.editor.Clear()
		a.ClearDisplay()
		a.SetSaveEnabled(false)
		a.search.SetValue("")
		a.focus = searchFocus
		a.updateFocus()
		return a, a.setStatus(statusInfo, "Form cleared")

	case key.Matches(msg, a.keys.Save):
		return a, a.handleSave()

	case key.Matches(msg, a.keys.Submit):
		if a.focus == searchFocus {
			return a, a.handleSearch()
		}
		return a, a.handleSave()
	}

	return a, a.updateFocused(msg)
}

func (a *App) handleSearch() tea.Cmd {
	raw := a.search.Value()
	err := a.editor.Search(a.ctx, raw)
	switch {
	case err == nil:
		id, _ := a.editor.CurrentID()
		if len(a.inputs) > 0 {
			a.focus = searchFocus + 1
			a.updateFocus()
		}
		return a.setStatus(statusSuccess, fmt.Sprintf("Loaded %s %d", a.editor.Table(), id))
	case errors.Is(err, editor.ErrNotFound):
		return a.setStatus(statusInfo, fmt.Sprintf("No record with id %s", strings.TrimSpace(raw)))
	case editor.IsInformational(err):
		return a.setStatus(statusInfo, capitalize(err.Error()))
	default:
		return a.setStatus(statusError, fmt.Sprintf("Search failed: %v", err))
	}
}

func (a *App) handleSave() tea.Cmd {
	if err := a.syncFields(); err != nil {
		return a.setStatus(statusError, err.Error())
	}

	stmt, err := a.editor.Save(a.ctx)

	var lockErr *database.LockError
	switch {
	case err == nil:
		a.search.SetValue("")
		a.focus = searchFocus
		a.updateFocus()
		return a.setStatus(statusSuccess, fmt.Sprintf("Saved %d field(s)", len(stmt.Args)-1))
	case errors.Is(err, editor.ErrNoChanges):
		a.search.SetValue("")
		a.focus = searchFocus
		a.updateFocus()
		return a.setStatus(statusInfo, "No changes to save")
	case errors.Is(err, editor.ErrNoRecord):
		return a.setStatus(statusInfo, "No record loaded, search first")
	case errors.As(err, &lockErr):
		return a.setStatus(statusError, fmt.Sprintf("Record is being saved by %s", lockErr.HeldBy))
	default:
		if a.editor.State() == editor.Idle {
			a.focus = searchFocus
			a.updateFocus()
		}
		return a.setStatus(statusError, fmt.Sprintf("Save failed: %v", err))
	}
}

// syncFields copies the column inputs into the editor's field buffer.
func (a *App) syncFields() error {
	for i, col := range a.columns {
		if err := a.editor.SetField(col, a.inputs[i].Value()); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.focus == searchFocus {
		a.search, cmd = a.search.Update(msg)
		return cmd
	}
	i := a.focus - 1
	a.inputs[i], cmd = a.inputs[i].Update(msg)
	return cmd
}

func (a *App) updateFocus() {
	if a.focus == searchFocus {
		a.search.Focus()
	} else {
		a.search.Blur()
	}
	for i := range a.inputs {
		if a.focus == i+1 {
			a.inputs[i].Focus()
		} else {
			a.inputs[i].Blur()
		}
	}
}

func (a *App) updateSizes() {
	width := a.width - a.labelWidth() - 10
	if width < 10 {
		width = 10
	}
	a.search.Width = width
	for i := range a.inputs {
		a.inputs[i].Width = width
	}
	a.help.Width = a.width
}

func (a *App) setStatus(kind statusKind, text string) tea.Cmd {
	a.statusSeq++
	a.status = text
	a.statusKind = kind
	seq := a.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func (a *App) labelWidth() int {
	w := len("id")
	for _, col := range a.columns {
		if lipgloss.Width(col) > w {
			w = lipgloss.Width(col)
		}
	}
	return w
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width < 40 || a.height < 10 {
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
			errorStyle.Render("Terminal too small\nMin: 40x10"))
	}

	if a.showHelp {
		return a.renderHelp()
	}

	var b strings.Builder
	b.WriteString(a.renderForm())
	b.WriteString("\n")
	b.WriteString(a.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a *App) renderForm() string {
	labelWidth := a.labelWidth()

	var b strings.Builder
	b.WriteString(a.renderField("id", labelWidth, a.focus == searchFocus, a.search.View()))
	b.WriteString("\n")
	b.WriteString(dimItemStyle.Render(strings.Repeat("─", labelWidth+a.search.Width+4)))
	for i, col := range a.columns {
		b.WriteString("\n")
		b.WriteString(a.renderField(col, labelWidth, a.focus == i+1, a.inputs[i].View()))
	}
	b.WriteString("\n\n")
	b.WriteString(a.renderSaveButton())

	return formStyle.Width(a.width - 2).Render(b.String())
}

func (a *App) renderField(label string, width int, focused bool, input string) string {
	style := labelStyle
	marker := "  "
	if focused {
		style = focusedLabelStyle
		marker = "> "
	}
	return style.Render(marker+fmt.Sprintf("%-*s", width, label)) + " " + input
}

func (a *App) renderSaveButton() string {
	if a.saveEnabled {
		return successStyle.Render("[ Save ]") + " " + dimItemStyle.Render("enter / ctrl+s")
	}
	return dimItemStyle.Render("[ Save ]")
}

func (a *App) renderStatusLine() string {
	if a.status == "" {
		return ""
	}
	switch a.statusKind {
	case statusError:
		return errorStyle.Render(a.status)
	case statusSuccess:
		return successStyle.Render(a.status)
	default:
		return infoStyle.Render(a.status)
	}
}

func (a *App) renderStatusBar() string {
	var leftParts []string
	var rightParts []string

	// Left side: title and user
	leftParts = append(leftParts, titleStyle.Render("tableedit"))
	leftParts = append(leftParts, dimItemStyle.Render(a.user.DisplayName()))

	// Right side: table, current id and badge
	rightParts = append(rightParts, statusKeyStyle.Render(a.editor.Table()))
	if id, ok := a.editor.CurrentID(); ok {
		rightParts = append(rightParts, statusValueStyle.Render(fmt.Sprintf("#%d", id)))
	}
	rightParts = append(rightParts, levelBadge(a.editor.Level()))
	rightParts = append(rightParts, a.help.ShortHelpView([]key.Binding{a.keys.Help, a.keys.Quit}))

	leftContent := strings.Join(leftParts, " ")
	rightContent := strings.Join(rightParts, " ")

	padding := a.width - lipgloss.Width(leftContent) - lipgloss.Width(rightContent) - 2 // -2 for statusBar padding
	if padding < 1 {
		padding = 1
	}

	content := leftContent + strings.Repeat(" ", padding) + rightContent
	return statusBarStyle.Width(a.width).Render(content)
}

func (a *App) renderHelp() string {
	var b strings.Builder

	for _, group := range a.keys.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(helpKeyStyle.Render(fmt.Sprintf("%-12s", h.Key)))
			b.WriteString(helpDescStyle.Render(h.Desc))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimItemStyle.Render("Enter in the id field searches, in any other field it saves."))
	b.WriteString("\n")
	b.WriteString(dimItemStyle.Render("Press F1 or Esc to close"))

	modal := modalStyle.Render(titleStyle.Render("Help") + "\n\n" + b.String())
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, modal)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
