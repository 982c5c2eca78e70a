// Package cmd provides CLI commands for the framewire binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/decode/kiss"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for commands with a TUI view (decode, listen).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (decode, listen only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// MarkerFlags returns flags overriding the KISS marker bytes.
func MarkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "fend", Usage: "Frame end marker byte", Value: uint(kiss.FEND)},
		&cli.UintFlag{Name: "fesc", Usage: "Frame escape marker byte", Value: uint(kiss.FESC)},
		&cli.UintFlag{Name: "tfend", Usage: "Transposed frame end byte", Value: uint(kiss.TFEND)},
		&cli.UintFlag{Name: "tfesc", Usage: "Transposed frame escape byte", Value: uint(kiss.TFESC)},
	}
}

// markersFromFlags reads MarkerFlags, starting from base for unset flags.
func markersFromFlags(c *cli.Context, base kiss.Markers) (kiss.Markers, error) {
	m := base
	for _, f := range []struct {
		name string
		dst  *byte
	}{
		{"fend", &m.FEND},
		{"fesc", &m.FESC},
		{"tfend", &m.TFEND},
		{"tfesc", &m.TFESC},
	} {
		if !c.IsSet(f.name) {
			continue
		}
		v := c.Uint(f.name)
		if v > 0xFF {
			return kiss.Markers{}, fmt.Errorf("--%s must be a byte, got %d", f.name, v)
		}
		*f.dst = byte(v)
	}
	if err := m.Validate(); err != nil {
		return kiss.Markers{}, err
	}
	return m, nil
}

// isStderrTTY reports whether stderr is a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
