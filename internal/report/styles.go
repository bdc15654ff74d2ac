// Package report renders diagnostics and usage classifications for the
// terminal.
package report

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors, shared by light and dark terminals.
var (
	Destructive = lipgloss.Color("#e53935") // Red
	Success     = lipgloss.Color("#8BC34A") // Lime Green
	Warning     = lipgloss.Color("#FFC107") // Yellow
	Info        = lipgloss.Color("#2196F3") // Blue
	Muted       = lipgloss.Color("#8a94a6")
)

// Styles holds the styled components used by the renderers.
type Styles struct {
	Title    lipgloss.Style
	Location lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Info     lipgloss.Style
	Success  lipgloss.Style
	Muted    lipgloss.Style
}

// NewStyles returns colored styles.
func NewStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true),
		Location: lipgloss.NewStyle().Foreground(Muted),
		Error:    lipgloss.NewStyle().Foreground(Destructive).Bold(true),
		Warning:  lipgloss.NewStyle().Foreground(Warning),
		Info:     lipgloss.NewStyle().Foreground(Info),
		Success:  lipgloss.NewStyle().Foreground(Success),
		Muted:    lipgloss.NewStyle().Foreground(Muted),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:    plain,
		Location: plain,
		Error:    plain,
		Warning:  plain,
		Info:     plain,
		Success:  plain,
		Muted:    plain,
	}
}

// DetectStyles honors NO_COLOR.
func DetectStyles() Styles {
	if os.Getenv("NO_COLOR") != "" {
		return PlainStyles()
	}
	return NewStyles()
}
