// Package main provides the framewire CLI entrypoint.
//
// Usage:
//
//	framewire <command> [options]
//
// Exit codes for `listen` and `decode`:
//   - 0: success (source closed or interrupted, policy flushed)
//   - 1: usage or configuration error
//   - 2: transport failure
//   - 3: policy failure
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/cli/cmd"
	"github.com/pithecene-io/framewire/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// osExit is replaced in tests.
var osExit = os.Exit

func main() {
	app := &cli.App{
		Name:           "framewire",
		Usage:          "Streaming KISS frame decoder",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ListenCommand(),
			cmd.DecodeCommand(),
			cmd.EncodeCommand(),
			cmd.HistoryCommand(),
			cmd.PortsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	osExit(code)
}

// exitStatus returns the exit code for err and the message to print, if any.
func exitStatus(err error) (int, string) {
	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}

	// Unexpected error - print and exit with code 1
	return 1, fmt.Sprintf("Error: %v", err)
}
