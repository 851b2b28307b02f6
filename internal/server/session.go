package server

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/history"
)

// Session represents an active SSH session.
type Session struct {
	ID         string
	User       *access.UserInfo
	RemoteAddr string
	Mode       string
	StartTime  time.Time
}

// NewSession creates a new session. Mode is history.ModeSSH for interactive
// logins and history.ModeCLI for one-shot commands.
func NewSession(user *access.UserInfo, remoteAddr, mode string) *Session {
	return &Session{
		ID:         uuid.New().String(),
		User:       user,
		RemoteAddr: remoteAddr,
		Mode:       mode,
		StartTime:  time.Now(),
	}
}

// Duration returns how long the session has been active.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// ToHistorySession converts to a history.Session for storage.
func (s *Session) ToHistorySession() *history.Session {
	hs := history.NewSession(s.ID, s.User, s.Mode)
	hs.RemoteAddr = s.RemoteAddr
	return hs
}

// SessionManager manages active sessions.
type SessionManager struct {
	sessions     map[string]*Session
	historyStore *history.Store
	logger       *log.Logger
	mu           sync.RWMutex
}

// NewSessionManager creates a new session manager.
func NewSessionManager(historyStore *history.Store, logger *log.Logger) *SessionManager {
	return &SessionManager{
		sessions:     make(map[string]*Session),
		historyStore: historyStore,
		logger:       logger,
	}
}

// CreateSession creates and registers a new session.
func (sm *SessionManager) CreateSession(user *access.UserInfo, remoteAddr, mode string) *Session {
	session := NewSession(user, remoteAddr, mode)

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	// History is not critical: log and keep serving.
	if sm.historyStore != nil {
		if err := sm.historyStore.CreateSession(session.ToHistorySession()); err != nil {
			sm.logger.Warnf("Failed to record session %s: %v", session.ID, err)
		}
	}

	return session
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// EndSession ends a session.
func (sm *SessionManager) EndSession(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if sm.historyStore != nil {
		if err := sm.historyStore.EndSession(id); err != nil {
			sm.logger.Warnf("Failed to end session %s: %v", id, err)
		}
	}
}

// ListActiveSessions returns all active sessions.
func (sm *SessionManager) ListActiveSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
