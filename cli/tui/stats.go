package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/types"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	phases   table.Model
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
		phases:   phaseTable(data),
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.phases, cmd = m.phases.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_metrics":
		content = m.renderStatsMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var vertices, edges int64
	for _, p := range data.Phases {
		vertices += p.Vertices
		edges += p.Edges
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Run %s", data.RunID)))
	b.WriteString("\n")
	writeField(&b, "Mode:", data.Mode)
	writeField(&b, "Output:", data.Output+"/"+data.Encoder)
	writeField(&b, "Completed:", data.CompletedAt)
	b.WriteString("\n")

	boxes := []string{
		m.renderStatBox("Vertices", vertices, ElementColor(types.ElementVertex)),
		m.renderStatBox("Edges", edges, ElementColor(types.ElementEdge)),
		m.renderStatBox("IDs issued", data.IDsIssued, accentColor),
		m.renderStatBox("Phases ok", data.PhasesCompleted, okColor),
		m.renderStatBox("Phases failed", data.PhasesFailed, failColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")
	b.WriteString(m.phases.View())

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func phaseTable(data any) table.Model {
	cols := []table.Column{
		{Title: "Phase", Width: 6},
		{Title: "Chunks", Width: 8},
		{Title: "Items", Width: 10},
		{Title: "Vertices", Width: 10},
		{Title: "Edges", Width: 10},
		{Title: "Dropped", Width: 8},
		{Title: "Errors", Width: 7},
		{Title: "ms", Width: 8},
	}
	var rows []table.Row
	if d, ok := data.(*reader.MetricsSnapshot); ok {
		for _, p := range d.Phases {
			rows = append(rows, table.Row{
				p.Phase,
				fmt.Sprintf("%d", p.Chunks),
				fmt.Sprintf("%d", p.Items),
				fmt.Sprintf("%d", p.Vertices),
				fmt.Sprintf("%d", p.Edges),
				fmt.Sprintf("%d", p.Dropped),
				fmt.Sprintf("%d", p.Errors),
				fmt.Sprintf("%d", p.DurationMs),
			})
		}
	}
	return newTable(cols, rows)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
