// Package tui provides Bubble Tea views for the lattice CLI.
//
// TUI mode is opt-in (--tui) and limited to the read-only inspect and
// stats commands. Views render the same payloads as json/table output.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/lattice/types"
)

var (
	accentColor = lipgloss.Color("#0EA5E9")
	textColor   = lipgloss.Color("#F8FAFC")
	dimColor    = lipgloss.Color("#64748B")
	okColor     = lipgloss.Color("#22C55E")
	warnColor   = lipgloss.Color("#EAB308")
	failColor   = lipgloss.Color("#DC2626")

	// Element colors, shared by counters and stat boxes.
	vertexColor = lipgloss.Color("#8B5CF6")
	edgeColor   = lipgloss.Color("#F97316")
	logColor    = dimColor
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(1, 2)

	// StatBoxStyle frames one counter; callers set the border color.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// StateStyle colors a phase outcome or frame-file state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "completed", "ok":
		return ValueStyle.Foreground(okColor)
	case "running", "truncated":
		return ValueStyle.Foreground(warnColor)
	case "failed", "error":
		return ValueStyle.Foreground(failColor)
	default:
		return ValueStyle
	}
}

// ElementColor returns the display color of an element type.
func ElementColor(t types.ElementType) lipgloss.Color {
	switch t {
	case types.ElementVertex:
		return vertexColor
	case types.ElementEdge:
		return edgeColor
	case types.ElementLog:
		return logColor
	default:
		return textColor
	}
}
