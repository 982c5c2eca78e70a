package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framewire/metrics"
)

// StatsModel is a Bubble Tea model for the stream counter summary.
type StatsModel struct {
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model. data must be a metrics.Snapshot.
func NewStatsModel(data any) StatsModel {
	return StatsModel{data: data}
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

	help := helpStyle.Render("Press q or Ctrl+C to quit")
	return m.renderSnapshot() + "\n" + help
}

func (m StatsModel) renderSnapshot() string {
	snap, ok := m.data.(metrics.Snapshot)
	if !ok {
		return "Invalid data type for stats"
	}

	var b strings.Builder
	title := "Stream Statistics"
	if snap.Stream != "" {
		title = fmt.Sprintf("Stream %s", snap.Stream)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(snapshotBoxes(snap))

	if len(snap.DroppedByKind) > 0 {
		b.WriteString("\n")
		for kind, n := range snap.DroppedByKind {
			b.WriteString(fmt.Sprintf("%s %s\n",
				labelStyle.Render("Dropped "+kind+":"),
				valueStyle.Render(fmt.Sprintf("%d", n))))
		}
	}

	return b.String()
}

// snapshotBoxes renders the decode and delivery counters of snap.
func snapshotBoxes(snap metrics.Snapshot) string {
	decode := []string{
		renderStatBox("Chunks", snap.ChunksAccepted, roleVolume),
		renderStatBox("Bytes", snap.BytesAccepted, roleVolume),
		renderStatBox("Decoded", snap.FramesDecoded, roleGood),
		renderStatBox("Aborted", snap.FramesAborted, roleLoss),
	}
	delivery := []string{
		renderStatBox("Delivered", snap.FramesDelivered, roleGood),
		renderStatBox("Dropped", snap.FramesDropped, roleLoss),
		renderStatBox("Read errors", snap.PortReadErrors, roleFault),
		renderStatBox("Emit errors", snap.EmitFailures, roleFault),
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, decode...),
		lipgloss.JoinHorizontal(lipgloss.Top, delivery...),
	)
}

func renderStatBox(label string, value int64, r role) string {
	color := roleColors[r]
	valueStr := valueStyle.Bold(true).Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := statLabelStyle.Render(label)
	return statBoxStyle.BorderForeground(color).Render(
		lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	model := NewStatsModel(data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(data any) string {
	model := NewStatsModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
