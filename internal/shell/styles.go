package shell

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
	textColor    = lipgloss.Color("#F9FAFB")
	infoColor    = lipgloss.Color("#60A5FA")
)

// Styles holds the lipgloss styles the shell renders with.
type Styles struct {
	Notice  lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
}

// DefaultStyles returns the shell's standard palette.
func DefaultStyles() Styles {
	return Styles{
		Notice:  lipgloss.NewStyle().Foreground(infoColor).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(warningColor),
		Error:   lipgloss.NewStyle().Foreground(errorColor),
		Muted:   lipgloss.NewStyle().Foreground(mutedColor),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1),
	}
}
