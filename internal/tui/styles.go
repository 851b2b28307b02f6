package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/johan-st/tableedit/internal/access"
)

// Colors - using a professional dark theme
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F3F4F6") // Light gray
	bgColor        = lipgloss.Color("#1F2937") // Dark gray
)

// Form styles
var (
	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	inputTextStyle = lipgloss.NewStyle().
			Foreground(textColor)

	dimItemStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// Status bar styles
var (
	statusBarStyle = lipgloss.NewStyle().
			Background(bgColor).
			Foreground(textColor).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(textColor)
)

// Access level badges
var (
	adminBadge = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFF")).
			Padding(0, 1).
			Bold(true)

	readWriteBadge = lipgloss.NewStyle().
			Background(secondaryColor).
			Foreground(lipgloss.Color("#FFF")).
			Padding(0, 1)

	readOnlyBadge = lipgloss.NewStyle().
			Background(accentColor).
			Foreground(lipgloss.Color("#000")).
			Padding(0, 1)

	noBadge = lipgloss.NewStyle().
		Background(errorColor).
		Foreground(lipgloss.Color("#FFF")).
		Padding(0, 1)
)

// Help styles
var (
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)
)

// Message styles
var (
	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	infoStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// Title style
var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(primaryColor)

// levelBadge renders the badge for an access level.
func levelBadge(level access.Level) string {
	switch level {
	case access.Admin:
		return adminBadge.Render("ADMIN")
	case access.ReadWrite:
		return readWriteBadge.Render("RW")
	case access.ReadOnly:
		return readOnlyBadge.Render("RO")
	default:
		return noBadge.Render("NO")
	}
}
