package editor

import (
	"errors"
	"fmt"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/database"
)

var (
	// ErrNoRecord is returned by Save when no record has been loaded.
	ErrNoRecord = errors.New("no record loaded")
	// ErrNoChanges is returned by Save when every field matches the
	// stored value. It is informational.
	ErrNoChanges = errors.New("nothing to save")
	// ErrNotFound is returned by Search when no row has the id.
	ErrNotFound = database.ErrNotFound
	// ErrNoSchema is returned when an operation needs columns that were
	// never loaded.
	ErrNoSchema = errors.New("columns not loaded")
)

// ValidationError reports search input that is not an integer id.
type ValidationError struct {
	Input string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return "please enter an id"
	}
	return fmt.Sprintf("invalid id %q: must be an integer", e.Input)
}

// AccessError reports an operation the session's level does not allow.
type AccessError struct {
	Op    string
	Level access.Level
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s not allowed with %s access", e.Op, e.Level)
}

// IsInformational reports whether err is an expected outcome that should
// be shown to the user but not logged as a failure.
func IsInformational(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrNoChanges) ||
		errors.Is(err, ErrNoRecord) ||
		errors.Is(err, ErrNotFound) ||
		errors.As(err, &verr)
}
