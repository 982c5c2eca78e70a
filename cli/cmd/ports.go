package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/cli/render"
	"github.com/pithecene-io/framewire/port/serial"
)

// PortsCommand returns the ports command, listing serial devices.
func PortsCommand() *cli.Command {
	return &cli.Command{
		Name:   "ports",
		Usage:  "List available serial ports",
		Flags:  ReadOnlyFlags(),
		Action: portsAction(serial.ListPorts),
	}
}

func portsAction(list func() ([]serial.Info, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for ports command", exitUsage)
		}

		infos, err := list()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if infos == nil {
			infos = []serial.Info{}
		}
		return r.Render(infos)
	}
}
