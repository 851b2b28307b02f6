package database

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// LockError reports a row that another session is saving.
type LockError struct {
	Row    string
	HeldBy string
	Since  time.Time
}

func (e *LockError) Error() string {
	return fmt.Sprintf("row %s is being saved by %s (since %s)",
		e.Row, e.HeldBy, e.Since.Format(time.Kitchen))
}

// LockInfo describes who holds a row lock.
type LockInfo struct {
	HeldBy    string
	SessionID string
	Since     time.Time
}

// RowKey identifies a row for locking.
func RowKey(table string, id int64) string {
	return fmt.Sprintf("%s#%d", table, id)
}

// LockManager hands out short-lived per-row write locks so two sessions
// never update the same row at once.
type LockManager struct {
	locks map[string]*LockInfo
	mu    sync.RWMutex
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*LockInfo),
	}
}

// TryLock acquires the lock on key or returns a *LockError.
// The holding session may lock again.
func (lm *LockManager) TryLock(key, holder, sessionID string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if info, exists := lm.locks[key]; exists {
		if info.SessionID == sessionID {
			return nil
		}
		return &LockError{
			Row:    key,
			HeldBy: info.HeldBy,
			Since:  info.Since,
		}
	}

	lm.locks[key] = &LockInfo{
		HeldBy:    holder,
		SessionID: sessionID,
		Since:     time.Now(),
	}
	return nil
}

// Unlock releases key if sessionID holds it.
func (lm *LockManager) Unlock(key, sessionID string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if info, exists := lm.locks[key]; exists && info.SessionID == sessionID {
		delete(lm.locks, key)
	}
}

// IsLocked reports whether key is held.
func (lm *LockManager) IsLocked(key string) bool {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	_, exists := lm.locks[key]
	return exists
}

// ReleaseAllForSession drops every lock a session holds. Called when an
// SSH session ends.
func (lm *LockManager) ReleaseAllForSession(sessionID string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for key, info := range lm.locks {
		if info.SessionID == sessionID {
			delete(lm.locks, key)
		}
	}
}

// ListLocks returns a copy of the current locks.
func (lm *LockManager) ListLocks() map[string]LockInfo {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	result := make(map[string]LockInfo, len(lm.locks))
	for k, v := range lm.locks {
		result[k] = *v
	}
	return result
}

// WithWriteLock runs fn while holding the lock on key.
func (lm *LockManager) WithWriteLock(key, holder, sessionID string, fn func() error) error {
	if err := lm.TryLock(key, holder, sessionID); err != nil {
		return err
	}
	defer lm.Unlock(key, sessionID)

	return fn()
}

// IsBusyError reports whether err is a SQLite busy or locked error.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
