package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/port/serial"
)

func portsTestApp(list func() ([]serial.Info, error)) (*cli.App, *bytes.Buffer) {
	app, stdout, _ := newTestApp(&cli.Command{
		Name:   "ports",
		Flags:  ReadOnlyFlags(),
		Action: portsAction(list),
	})
	return app, stdout
}

func TestPortsAction(t *testing.T) {
	app, out := portsTestApp(func() ([]serial.Info, error) {
		return []serial.Info{{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"}}, nil
	})
	if err := app.Run([]string{"framewire", "ports", "--format", "json"}); err != nil {
		t.Fatalf("ports failed: %v", err)
	}
	if !strings.Contains(out.String(), `"name": "/dev/ttyUSB0"`) || !strings.Contains(out.String(), `"vid": "0403"`) {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestPortsAction_Empty(t *testing.T) {
	app, out := portsTestApp(func() ([]serial.Info, error) { return nil, nil })
	if err := app.Run([]string{"framewire", "ports", "--format", "table"}); err != nil {
		t.Fatalf("ports failed: %v", err)
	}
	if !strings.Contains(out.String(), "(no results)") {
		t.Errorf("expected empty marker, got: %s", out.String())
	}
}

func TestPortsAction_Errors(t *testing.T) {
	app, _ := portsTestApp(func() ([]serial.Info, error) { return nil, errors.New("enumeration failed") })
	err := app.Run([]string{"framewire", "ports", "--format", "json"})
	if err == nil || !strings.Contains(err.Error(), "enumeration failed") {
		t.Errorf("expected list error, got %v", err)
	}

	app, _ = portsTestApp(func() ([]serial.Info, error) { return nil, nil })
	err = app.Run([]string{"framewire", "ports", "--tui"})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected --tui rejection, got %v", err)
	}
}
