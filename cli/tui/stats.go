package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/tlist/lode"
)

// StatsModel shows a stored session record.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{viewType: viewType, data: data}
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
	case ViewStatsSession:
		content = m.renderSession()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	return content + "\n" + helpLine(keys.Quit)
}

func (m StatsModel) renderSession() string {
	rec, ok := m.data.(*lode.SessionRecord)
	if !ok || rec == nil {
		return "Invalid data type for stats_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session " + rec.SessionID))
	b.WriteString("\n\n")

	state := rec.State
	if rec.Stopped {
		state = "stopped"
	}
	fields := [][2]string{
		{"Detector", rec.Detector},
		{"Day", rec.Day},
		{"Preset", fmt.Sprintf("%s %g", rec.Preset, rec.PresetValue)},
		{"Time base", fmt.Sprintf("%g ns", rec.TimeBaseNs)},
		{"Started", rec.StartedAt.Format("2006-01-02 15:04:05")},
		{"Duration", rec.CompletedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()},
		{"Summary", rec.SummaryPath},
	}
	b.WriteString(LabelStyle.Render("State:") + " " + StateStyle(state).Render(state) + "\n")
	for _, f := range fields {
		b.WriteString(LabelStyle.Render(f[0]+":") + " " + ValueStyle.Render(f[1]) + "\n")
	}
	if rec.Error != "" {
		b.WriteString(LabelStyle.Render("Error:") + " " + ErrorStyle.Render(rec.Error) + "\n")
	}
	b.WriteString("\n")

	mt := rec.Metrics
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Events", int64(rec.TotalEvents), highlightColor),
		renderStatBox("Chunks", int64(len(rec.Files)), highlightColor),
		renderStatBox("Polls", mt.Polls, successColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Markers", mt.RolloverMarkers, successColor),
		renderStatBox("Anomalies", mt.Anomalies, warningColor),
		renderStatBox("Device errors", mt.DeviceErrors, errorColor),
	))

	return b.String()
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RenderStatsStatic renders the stats view without a terminal program.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
