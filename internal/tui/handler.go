package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/johan-st/tableedit/internal/server"
)

// Handler returns a bubbletea middleware handler for SSH sessions. The
// form drives the editor the server built for the session.
func Handler() bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		ed := server.GetEditorFromSSH(s)
		pty, _, ok := s.Pty()
		if ed == nil || !ok {
			// The routing and editor middleware reject these first.
			return nil, nil
		}

		user := server.GetUserFromContext(s.Context())
		app := NewApp(s.Context(), ed, user, pty.Window.Width, pty.Window.Height)

		return app, []tea.ProgramOption{tea.WithAltScreen()}
	}
}
