// Package tui provides Bubble Tea TUI components for the otacore CLI.
//
// The TUI is opt-in (--tui) and read-only. It renders the same payloads as
// the json, table and yaml formats and never shows data of its own.
package tui

import "github.com/charmbracelet/lipgloss"

// Outcome colors. Each pairs a light-background and a dark-background shade
// so device consoles with either theme stay readable.
var (
	okColor      = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	retryColor   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	failColor    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	countColor   = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	dimColor     = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	plainColor   = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	headingColor = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
)

var (
	// TitleStyle heads a view.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(headingColor)

	// LabelStyle pads field labels into a column.
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(16)

	// ValueStyle renders field values.
	ValueStyle = lipgloss.NewStyle().Foreground(plainColor)

	// HelpStyle renders key hints under a view.
	HelpStyle = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	// PanelStyle frames the artifact view.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(1, 2)

	// PayloadTitleStyle heads one payload inside the artifact view.
	PayloadTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(countColor)

	// CounterStyle frames one script counter; callers set the border color.
	CounterStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(18).
			Align(lipgloss.Center)
)

// StateStyle returns a style for a run status, script outcome or
// verification marker.
func StateStyle(state string) lipgloss.Style {
	base := lipgloss.NewStyle()
	switch state {
	case "completed", "success", "verified":
		return base.Foreground(okColor)
	case "retry", "timeout":
		return base.Foreground(retryColor)
	case "error", "setup_error", "failure":
		return base.Foreground(failColor)
	default:
		return ValueStyle
	}
}
