package server

import (
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/editor"
	"github.com/johan-st/tableedit/internal/history"
)

// Context keys for middleware values
type ctxKey string

const (
	ctxKeySession   ctxKey = "session"
	ctxKeyUser      ctxKey = "user"
	ctxKeyDBManager ctxKey = "db_manager"
	ctxKeyHistory   ctxKey = "history"
	ctxKeyEditor    ctxKey = "editor"
)

// SessionMiddleware creates sessions for each connection.
func SessionMiddleware(sessionMgr *SessionManager) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			user := GetUserFromContext(s.Context())
			if user == nil {
				// Create anonymous user if not authenticated
				user = &access.UserInfo{
					IsAnonymous:   true,
					AnonymousName: "unknown",
					RemoteAddr:    s.RemoteAddr().String(),
				}
				s.Context().SetValue(ctxKeyUser, user)
			}

			mode := history.ModeSSH
			if len(s.Command()) > 0 {
				mode = history.ModeCLI
			}

			session := sessionMgr.CreateSession(user, s.RemoteAddr().String(), mode)
			s.Context().SetValue(ctxKeySession, session)
			defer sessionMgr.EndSession(session.ID)

			next(s)
		}
	}
}

// EditorMiddleware gives every session its own record editor with its own
// connection. Row locks held by the session are released when it ends.
func EditorMiddleware(dbManager *database.Manager, historyStore *history.Store, cfg *config.Config, logger *log.Logger) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			user := GetUserFromContext(s.Context())

			var sessionID string
			if session := GetSessionFromSSH(s); session != nil {
				sessionID = session.ID
			}

			opts := editor.Options{
				RestoreOnSearchError: cfg.Editor.RestoreOnSearchError,
				ClearOnFailedSave:    cfg.Editor.ClearOnFailedSave,
				User:                 user,
				SessionID:            sessionID,
				Logger:               logger.With("session", sessionID),
			}
			if historyStore != nil {
				opts.Recorder = historyStore
			}

			ed, err := editor.ForSession(dbManager, opts)
			if err != nil {
				logger.Errorf("Failed to create editor for %s: %v", user.DisplayName(), err)
				wish.Fatalln(s, "Database unavailable")
				return
			}
			defer func() {
				dbManager.GetLockManager().ReleaseAllForSession(sessionID)
				if err := ed.Close(); err != nil {
					logger.Warnf("Failed to close editor connection: %v", err)
				}
			}()

			if !ed.Level().CanRead() {
				logger.Warnf("Denied %s: no access to %s", user.DisplayName(), ed.Table())
				wish.Fatalf(s, "Access denied to table %s\n", ed.Table())
				return
			}

			s.Context().SetValue(ctxKeyEditor, ed)
			next(s)
		}
	}
}

// DatabaseMiddleware injects the database manager into the context.
func DatabaseMiddleware(dbManager *database.Manager) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			s.Context().SetValue(ctxKeyDBManager, dbManager)
			next(s)
		}
	}
}

// HistoryMiddleware injects the history store into the context.
func HistoryMiddleware(historyStore *history.Store) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			s.Context().SetValue(ctxKeyHistory, historyStore)
			next(s)
		}
	}
}

// LoggingMiddleware logs connections.
func LoggingMiddleware(sessionMgr *SessionManager, logger *log.Logger) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			userName := GetUserFromContext(s.Context()).DisplayName()

			logger.Infof("Connection from %s as %s (command: %v)",
				s.RemoteAddr(), userName, s.Command())

			next(s)

			logger.Infof("Disconnected: %s (%d active)", s.RemoteAddr(), sessionMgr.Count())
		}
	}
}

// GetSessionFromSSH retrieves the session from the SSH session context.
func GetSessionFromSSH(s ssh.Session) *Session {
	if session, ok := s.Context().Value(ctxKeySession).(*Session); ok {
		return session
	}
	return nil
}

// GetEditorFromSSH retrieves the session's record editor.
func GetEditorFromSSH(s ssh.Session) *editor.Editor {
	if ed, ok := s.Context().Value(ctxKeyEditor).(*editor.Editor); ok {
		return ed
	}
	return nil
}

// GetDBManagerFromSSH retrieves the database manager from the SSH session context.
func GetDBManagerFromSSH(s ssh.Session) *database.Manager {
	if mgr, ok := s.Context().Value(ctxKeyDBManager).(*database.Manager); ok {
		return mgr
	}
	return nil
}

// GetHistoryFromSSH retrieves the history store from the SSH session context.
func GetHistoryFromSSH(s ssh.Session) *history.Store {
	if store, ok := s.Context().Value(ctxKeyHistory).(*history.Store); ok {
		return store
	}
	return nil
}
