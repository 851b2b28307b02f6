package editor

// View is the presentation side of an editor. The editor calls it while
// holding its own lock, so implementations must not call back into the
// editor.
type View interface {
	// DisplayRow shows one field value per column.
	DisplayRow(values map[string]string)
	// ClearDisplay empties every field.
	ClearDisplay()
	// SetSaveEnabled toggles the save affordance.
	SetSaveEnabled(enabled bool)
}

type nopView struct{}

func (nopView) DisplayRow(map[string]string) {}
func (nopView) ClearDisplay()                {}
func (nopView) SetSaveEnabled(bool)          {}

// Logger is the subset of the application logger the editor writes to.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
