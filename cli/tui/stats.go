package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/otacore/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
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

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsScripts:
		content = m.renderStatsScripts()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsScripts() string {
	data, ok := m.data.(*reader.ScriptStats)
	if !ok {
		return "Invalid data type for stats_scripts"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("State Scripts: %s %s", data.State, data.Action)))
	b.WriteString("\n\n")

	execution := []string{
		m.renderStatBox("Collected", data.Collected, countColor),
		m.renderStatBox("Started", data.Started, countColor),
		m.renderStatBox("Succeeded", data.Succeeded, okColor),
		m.renderStatBox("Failed", data.Failed, failColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, execution...))
	b.WriteString("\n")

	abnormal := []string{
		m.renderStatBox("Retry Requests", data.RetryRequests, retryColor),
		m.renderStatBox("Timed Out", data.TimedOut, retryColor),
		m.renderStatBox("Launch Failures", data.LaunchFailure, failColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, abnormal...))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Invocation", data.InvocationID},
		{"Recorded At", data.Ts},
		{"Backend", data.StorageBackend},
		{"Journal Writes", fmt.Sprintf("%d ok, %d failed", data.JournalWriteSuccess, data.JournalWriteFailure)},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.TerminalColor) string {
	valueStr := lipgloss.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := lipgloss.NewStyle().Foreground(dimColor).Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return CounterStyle.BorderForeground(color).Render(content)
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
