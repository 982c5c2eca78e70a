// Package tui provides Bubble Tea TUI components for the framewire CLI.
//
// TUI is opt-in (--tui) and read-only. It shows the same frames and
// counters that the non-TUI renderers print.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framewire/types"
)

// role groups counters and states by what they say about the link.
type role int

const (
	roleVolume role = iota // bytes and chunks moved
	roleGood               // frames decoded or delivered
	roleLoss               // frames aborted or dropped
	roleFault              // read and emit errors
)

var roleColors = map[role]lipgloss.Color{
	roleVolume: lipgloss.Color("#3B82F6"),
	roleGood:   lipgloss.Color("#10B981"),
	roleLoss:   lipgloss.Color("#F59E0B"),
	roleFault:  lipgloss.Color("#EF4444"),
}

var (
	titleColor = lipgloss.Color("#7C3AED")
	mutedColor = lipgloss.Color("#6B7280")
	valueColor = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(titleColor).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	valueStyle = lipgloss.NewStyle().Foreground(valueColor)
	helpStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// tableBoxStyle frames the monitor's scrolling frame table.
	tableBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	statBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	statLabelStyle = labelStyle.Align(lipgloss.Center)
)

// roleStyle colors text by role.
func roleStyle(r role) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(roleColors[r])
}

// KindStyle returns the style for counters and rows of a frame kind.
func KindStyle(kind types.FrameKind) lipgloss.Style {
	switch kind {
	case types.FrameKindData:
		return roleStyle(roleGood)
	case types.FrameKindAborted:
		return roleStyle(roleLoss)
	default:
		return valueStyle
	}
}
