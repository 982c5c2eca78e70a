package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framewire/metrics"
	"github.com/pithecene-io/framewire/types"
)

// DefaultMonitorRows is the number of recent frames the monitor keeps.
const DefaultMonitorRows = 200

// FrameMsg delivers a decoded frame to the monitor.
type FrameMsg struct {
	Event *types.FrameEvent
}

// SnapshotMsg delivers updated stream counters to the monitor.
type SnapshotMsg struct {
	Snapshot metrics.Snapshot
}

// DoneMsg tells the monitor that the pipeline stopped.
type DoneMsg struct {
	Err error
}

// MonitorModel is a Bubble Tea model showing frames as they are decoded.
type MonitorModel struct {
	title    string
	maxRows  int
	rows     []table.Row
	table    table.Model
	snap     metrics.Snapshot
	frames   int64
	aborted  int64
	done     bool
	err      error
	width    int
	height   int
	quitting bool
}

// NewMonitorModel creates a monitor model titled title.
func NewMonitorModel(title string) MonitorModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Seq", Width: 8},
			{Title: "Kind", Width: 8},
			{Title: "Port", Width: 4},
			{Title: "Cmd", Width: 4},
			{Title: "Len", Width: 6},
			{Title: "Payload", Width: 48},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	return MonitorModel{title: title, maxRows: DefaultMonitorRows, table: t}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - 14; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case FrameMsg:
		m.addFrame(msg.Event)
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *MonitorModel) addFrame(e *types.FrameEvent) {
	if e == nil {
		return
	}
	m.frames++
	if e.Kind == types.FrameKindAborted {
		m.aborted++
	}

	m.rows = append(m.rows, table.Row{
		fmt.Sprintf("%d", e.Seq),
		string(e.Kind),
		fmt.Sprintf("%d", e.Port),
		fmt.Sprintf("%d", e.Command),
		fmt.Sprintf("%d", len(e.Payload)),
		payloadPreview(e.Payload, 16),
	})
	if len(m.rows) > m.maxRows {
		m.rows = m.rows[len(m.rows)-m.maxRows:]
	}
	m.table.SetRows(m.rows)
	m.table.GotoBottom()
}

// Frames returns the number of frames seen.
func (m MonitorModel) Frames() int64 {
	return m.frames
}

// Rows returns the rows currently held.
func (m MonitorModel) Rows() []table.Row {
	return m.rows
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", m.frames)),
		labelStyle.Render("Aborted:"), KindStyle(types.FrameKindAborted).Render(fmt.Sprintf("%d", m.aborted)),
		labelStyle.Render("Bytes:"), valueStyle.Render(fmt.Sprintf("%d", m.snap.BytesAccepted))))

	b.WriteString(tableBoxStyle.Render(m.table.View()))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(roleStyle(roleFault).Render("stopped: " + m.err.Error()))
	case m.done:
		b.WriteString(roleStyle(roleGood).Render("stream closed"))
	default:
		b.WriteString(roleStyle(roleVolume).Render("listening"))
	}

	help := helpStyle.Render("↑/↓ scroll • q or Ctrl+C to quit")
	return lipgloss.JoinVertical(lipgloss.Left, b.String(), help)
}

// payloadPreview renders up to n bytes of b as hex.
func payloadPreview(b []byte, n int) string {
	var sb strings.Builder
	for i, c := range b {
		if i == n {
			sb.WriteString(" …")
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// Monitor runs a MonitorModel and feeds it from other goroutines.
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a monitor program. Options are passed to
// tea.NewProgram.
func NewMonitor(title string, opts ...tea.ProgramOption) *Monitor {
	return &Monitor{program: tea.NewProgram(NewMonitorModel(title), opts...)}
}

// Frame sends a frame to the monitor. It blocks until the program accepts
// it and returns immediately once the program has exited.
func (m *Monitor) Frame(e *types.FrameEvent) {
	m.program.Send(FrameMsg{Event: e})
}

// Snapshot sends updated counters to the monitor.
func (m *Monitor) Snapshot(s metrics.Snapshot) {
	m.program.Send(SnapshotMsg{Snapshot: s})
}

// Done marks the pipeline as stopped.
func (m *Monitor) Done(err error) {
	m.program.Send(DoneMsg{Err: err})
}

// Run blocks until the user quits.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Quit stops the program.
func (m *Monitor) Quit() {
	m.program.Quit()
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
