package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/tlist/archive"
)

// defaultFileRows is the visible file list length before the first
// window size message arrives.
const defaultFileRows = 10

// InspectModel shows a parsed summary file with a scrollable file list.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	offset   int
	quitting bool
}

// NewInspectModel creates an inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{viewType: viewType, data: data}
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
		m.offset = clampOffset(m.offset, m.fileCount(), m.fileRows())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Down):
			m.offset = clampOffset(m.offset+1, m.fileCount(), m.fileRows())
		case key.Matches(msg, keys.Up):
			m.offset = clampOffset(m.offset-1, m.fileCount(), m.fileRows())
		case key.Matches(msg, keys.Top):
			m.offset = 0
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
	case ViewInspectSummary:
		content = m.renderSummary()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	return content + "\n" + helpLine(keys.Up, keys.Down, keys.Quit)
}

func (m InspectModel) summary() (*archive.SummaryInfo, bool) {
	info, ok := m.data.(*archive.SummaryInfo)
	return info, ok && info != nil
}

func (m InspectModel) fileCount() int {
	if info, ok := m.summary(); ok {
		return len(info.Files)
	}
	return 0
}

// fileRows is the number of file lines that fit below the header block.
func (m InspectModel) fileRows() int {
	if m.height == 0 {
		return defaultFileRows
	}
	return max(m.height-20, 1)
}

func clampOffset(offset, total, rows int) int {
	return max(min(offset, total-rows), 0)
}

func (m InspectModel) renderSummary() string {
	info, ok := m.summary()
	if !ok {
		return "Invalid data type for inspect_summary"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Summary"))
	b.WriteString("\n\n")

	status := "incomplete"
	switch {
	case info.Failure != "":
		status = "failed"
	case info.Complete:
		status = "complete"
	}

	rows := [][2]string{
		{"Note 1", info.Note1},
		{"Note 2", info.Note2},
		{"Detector", info.Detector},
		{"Serial", info.Serial},
		{"Voltage", strconv.FormatFloat(info.Voltage, 'f', -1, 64) + " V"},
		{"Calibration", fmt.Sprintf("offset %g, slope %g", info.Calibration.Offset, info.Calibration.Slope)},
		{"Status", status},
	}
	if info.Complete {
		rows = append(rows, [2]string{"Total events", strconv.FormatUint(info.Total, 10)})
	}
	if info.Failure != "" {
		rows = append(rows, [2]string{"Failure", info.Failure})
	}

	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		switch row[0] {
		case "Status":
			value = StateStyle(row[1]).Render(row[1])
		case "Failure":
			value = ErrorStyle.Render(row[1])
		}
		b.WriteString(LabelStyle.Render(row[0]+":") + " " + value + "\n")
	}

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Files (%d)", len(info.Files))))
	b.WriteString("\n")
	end := min(m.offset+m.fileRows(), len(info.Files))
	for _, f := range info.Files[m.offset:end] {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			ValueStyle.Render(f.Path),
			LabelStyle.UnsetWidth().Render(fmt.Sprintf("(%d events)", f.Events))))
	}
	if end < len(info.Files) {
		b.WriteString(LabelStyle.UnsetWidth().Render(fmt.Sprintf("  … %d more", len(info.Files)-end)))
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

// RenderInspectStatic renders the inspect view without a terminal program.
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
