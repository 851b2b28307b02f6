package tui

import "time"

// statusKind selects how the status line is styled.
type statusKind int

const (
	statusInfo statusKind = iota
	statusSuccess
	statusError
)

// statusTTL is how long a status message stays visible.
const statusTTL = 5 * time.Second

// clearStatusMsg expires the status message with the same sequence number.
type clearStatusMsg struct {
	seq int
}
