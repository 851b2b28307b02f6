// Package access resolves what a user may do with the configured table.
package access

import "strings"

// Level is the permission a user holds on a table.
type Level int

const (
	// None hides the table entirely.
	None Level = iota
	// ReadOnly allows looking rows up but never saving them.
	ReadOnly
	// ReadWrite allows saving changed fields.
	ReadWrite
	// Admin additionally allows reading the audit history and session list.
	Admin
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. Unknown names map to None.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read-only", "readonly", "ro":
		return ReadOnly
	case "read-write", "readwrite", "rw":
		return ReadWrite
	case "admin":
		return Admin
	default:
		return None
	}
}

// CanRead reports whether rows may be looked up.
func (l Level) CanRead() bool { return l >= ReadOnly }

// CanWrite reports whether changed fields may be saved.
func (l Level) CanWrite() bool { return l >= ReadWrite }

// CanAdmin reports whether audit and session data may be viewed.
func (l Level) CanAdmin() bool { return l >= Admin }

// UserInfo identifies whoever drives an editor session.
type UserInfo struct {
	Name          string
	IsAdmin       bool
	PublicKeyFP   string
	IsAnonymous   bool
	AnonymousName string
	RemoteAddr    string
}

// DisplayName returns the name shown in the status line and audit log.
func (u *UserInfo) DisplayName() string {
	if u == nil {
		return "unknown"
	}
	if u.IsAnonymous {
		return u.AnonymousName
	}
	return u.Name
}
