package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/justapithecus/otacore/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
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

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectArtifact:
		content = m.renderInspectArtifact()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectArtifact() string {
	data, ok := m.data.(*reader.ArtifactInspectResponse)
	if !ok {
		return "Invalid data type for inspect_artifact"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Artifact"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Name", data.Name},
		{"Format", fmt.Sprintf("%s v%d", data.Format, data.Version)},
		{"Device Types", strings.Join(data.DeviceTypes, ", ")},
		{"Signed", fmt.Sprintf("%t", data.Signed)},
		{"Augmented", fmt.Sprintf("%t", data.Augmented)},
	}
	if data.Group != "" {
		rows = append(rows, []string{"Group", data.Group})
	}
	if data.Path != "" {
		rows = append([][]string{{"Path", data.Path}}, rows...)
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}

	if data.BytesRead > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Artifact Bytes:"), ValueStyle.Render(humanize.IBytes(uint64(data.BytesRead)))))
	}
	if data.BytesVerified {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Payload Bytes:"), StateStyle("verified").Render("verified")))
	}

	if len(data.Scripts) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Scripts:"))
		b.WriteString("\n")
		for _, s := range data.Scripts {
			b.WriteString("  " + ValueStyle.Render(s) + "\n")
		}
	}

	for _, p := range data.Payloads {
		b.WriteString("\n")
		b.WriteString(m.renderPayload(p))
	}

	return PanelStyle.Render(b.String())
}

func (m InspectModel) renderPayload(p reader.PayloadSummary) string {
	var b strings.Builder

	title := PayloadTitleStyle.Render(fmt.Sprintf("Payload %d: %s", p.Index, p.Type))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Compression:"), ValueStyle.Render(p.Compression)))
	b.WriteString(fmt.Sprintf("%s %s in %d files\n",
		LabelStyle.Render("Size:"),
		ValueStyle.Render(humanize.IBytes(uint64(p.Bytes))),
		len(p.Files)))

	for _, f := range p.Files {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			ValueStyle.Render(f.Name),
			HelpStyle.UnsetMarginTop().Render(humanize.IBytes(uint64(f.Size)))))
	}
	return b.String()
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
