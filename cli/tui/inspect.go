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

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	rows     table.Model
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
		rows:     inspectTable(data),
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_schema":
		content = m.renderInspectSchema()
	case "inspect_frames":
		content = m.renderInspectFrames()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ scroll • q quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectSchema() string {
	data, ok := m.data.(*reader.SchemaSummary)
	if !ok {
		return "Invalid data type for inspect_schema"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Schema"))
	b.WriteString("\n\n")

	writeField(&b, "Entrypoint:", data.Entrypoint)
	writeField(&b, "Vertex types:", fmt.Sprintf("%d", len(data.VertexTypes)))
	writeField(&b, "Edge types:", fmt.Sprintf("%d", len(data.EdgeTypes)))
	if data.StitchType != "" {
		writeField(&b, "Stitch:", fmt.Sprintf("%s × %g", data.StitchType, data.StitchWeight))
	}
	b.WriteString("\n")
	b.WriteString(m.rows.View())

	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderInspectFrames() string {
	data, ok := m.data.(*reader.FramesSummary)
	if !ok {
		return "Invalid data type for inspect_frames"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Frame Output"))
	b.WriteString("\n\n")

	writeField(&b, "Root:", data.Root)
	writeField(&b, "Files:", fmt.Sprintf("%d", data.Files))
	writeCount(&b, "Vertices:", data.Vertices, types.ElementVertex)
	writeCount(&b, "Edges:", data.Edges, types.ElementEdge)
	writeCount(&b, "Logs:", data.Logs, types.ElementLog)
	if data.Truncated > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Truncated:"),
			StateStyle("truncated").Render(fmt.Sprintf("%d", data.Truncated))))
	}
	b.WriteString("\n")
	b.WriteString(m.rows.View())

	return BoxStyle.Render(b.String())
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label), ValueStyle.Render(value)))
}

func writeCount(b *strings.Builder, label string, n int64, t types.ElementType) {
	value := ValueStyle.Foreground(ElementColor(t)).Render(fmt.Sprintf("%d", n))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label), value))
}

// inspectTable builds the scrollable row table of an inspect view.
func inspectTable(data any) table.Model {
	var cols []table.Column
	var rows []table.Row
	switch d := data.(type) {
	case *reader.SchemaSummary:
		cols = []table.Column{{Title: "Kind", Width: 8}, {Title: "Name", Width: 16}, {Title: "Label", Width: 16}, {Title: "Shape", Width: 30}}
		for _, v := range d.VertexTypes {
			rows = append(rows, table.Row{"vertex", v.Name, v.Label, strings.Join(v.OutEdges, ",")})
		}
		for _, e := range d.EdgeTypes {
			rows = append(rows, table.Row{"edge", e.Name, e.Label, e.OutVertex + " → " + e.InVertex})
		}
	case *reader.FramesSummary:
		cols = []table.Column{{Title: "Type", Width: 8}, {Title: "Label", Width: 20}, {Title: "Elements", Width: 12}, {Title: "State", Width: 10}}
		for _, l := range d.Labels {
			state := "ok"
			if l.Truncated {
				state = "truncated"
			}
			rows = append(rows, table.Row{l.ElementType, l.Label, fmt.Sprintf("%d", l.Elements), state})
		}
	}
	return newTable(cols, rows)
}

func newTable(cols []table.Column, rows []table.Row) table.Model {
	height := len(rows) + 1
	if height > 15 {
		height = 15
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(textColor).Background(accentColor)
	t.SetStyles(s)
	return t
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
