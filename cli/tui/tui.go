package tui

import (
	"fmt"
	"slices"
)

// View types.
const (
	// ViewMonitor is the live frame monitor of `framewire listen`.
	ViewMonitor = "monitor"
	// ViewStats is the stream counter summary.
	ViewStats = "stats"
)

// Run starts the TUI for a static view type.
// The monitor is live and is started with NewMonitor instead.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	switch viewType {
	case ViewStats:
		return RunStatsTUI(data)
	default:
		return fmt.Errorf("view %s must be started with NewMonitor", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewMonitor, ViewStats}
}
