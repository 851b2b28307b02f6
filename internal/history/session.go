package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/johan-st/tableedit/internal/access"
)

// Session is one editor session: a local run, a CLI call or an SSH login.
type Session struct {
	ID                   string
	UserName             string // Authenticated username or empty
	PublicKeyFingerprint string // SSH key fingerprint or empty
	AnonymousName        string // Generated name for anonymous users
	RemoteAddr           string
	Mode                 string
	CreatedAt            time.Time
	LastActiveAt         time.Time
	IsActive             bool
}

// Session modes.
const (
	ModeTUI = "tui"
	ModeCLI = "cli"
	ModeSSH = "ssh"
)

// Save outcomes.
const (
	OutcomeSaved     = "saved"
	OutcomeNoChanges = "no-changes"
	OutcomeFailed    = "failed"
	OutcomeDenied    = "denied"
)

// SaveRecord is one save attempt on one row.
type SaveRecord struct {
	ID        int64
	SessionID string
	Table     string
	RowID     int64
	Changes   map[string]string // column -> new text
	Statement string
	Outcome   string
	Error     string
	CreatedAt time.Time
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.New().String()
}

// NewSession creates a session record for user.
func NewSession(id string, user *access.UserInfo, mode string) *Session {
	now := time.Now()
	s := &Session{
		ID:           id,
		Mode:         mode,
		CreatedAt:    now,
		LastActiveAt: now,
		IsActive:     true,
	}

	if user != nil {
		s.RemoteAddr = user.RemoteAddr
		if user.IsAnonymous {
			s.AnonymousName = user.AnonymousName
		} else {
			s.UserName = user.Name
			s.PublicKeyFingerprint = user.PublicKeyFP
		}
	}

	return s
}

// DisplayName returns the name shown for the session.
func (s *Session) DisplayName() string {
	if s.UserName != "" {
		return s.UserName
	}
	if s.AnonymousName != "" {
		return s.AnonymousName
	}
	return "unknown"
}

// IsAuthenticated returns true if the session has an authenticated user.
func (s *Session) IsAuthenticated() bool {
	return s.UserName != ""
}
