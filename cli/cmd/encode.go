package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/decode/kiss"
	"github.com/pithecene-io/framewire/decode/lenprefix"
	"github.com/pithecene-io/framewire/iox"
)

// EncodeCommand returns the encode command.
// It frames a payload and writes the encoded bytes.
func EncodeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "hex",
			Usage: "Payload as hex (spaces allowed); read from --input when empty",
		},
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Payload file (- for stdin)",
			Value:   "-",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file (- for stdout)",
			Value:   "-",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Framing: kiss or lenprefix",
			Value: modeKISS,
		},
		&cli.UintFlag{
			Name:  "port",
			Usage: "KISS port (0-15)",
		},
		&cli.UintFlag{
			Name:  "command",
			Usage: "KISS command (0-15)",
			Value: uint(kiss.CmdData),
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Frame the payload as is, without a KISS type byte",
		},
		&cli.BoolFlag{
			Name:  "print-hex",
			Usage: "Write the encoded frame as hex text",
		},
	}
	flags = append(flags, MarkerFlags()...)

	return &cli.Command{
		Name:   "encode",
		Usage:  "Encode a payload into a frame",
		Flags:  flags,
		Action: encodeAction,
	}
}

func encodeAction(c *cli.Context) error {
	payload, err := readPayload(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	var frame []byte
	switch c.String("mode") {
	case modeKISS:
		markers, err := markersFromFlags(c, kiss.DefaultMarkers())
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid markers: %v", err), exitUsage)
		}
		if c.Bool("raw") {
			frame = kiss.Encode(markers, payload)
			break
		}
		if c.Uint("port") > 0x0F || c.Uint("command") > 0x0F {
			return cli.Exit(kiss.ErrNibbleRange.Error(), exitUsage)
		}
		frame, err = kiss.EncodeFrame(markers, uint8(c.Uint("port")), uint8(c.Uint("command")), payload)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
	case modeLenPrefix:
		if len(payload) > lenprefix.MaxPayloadSize {
			return cli.Exit(fmt.Sprintf("payload of %d bytes exceeds %d", len(payload), lenprefix.MaxPayloadSize), exitUsage)
		}
		frame = lenprefix.Encode(payload)
	default:
		return cli.Exit(fmt.Sprintf("invalid mode: %s (must be kiss or lenprefix)", c.String("mode")), exitUsage)
	}

	if c.Bool("print-hex") {
		frame = []byte(hex.EncodeToString(frame) + "\n")
	}
	return writeOutput(c, frame)
}

// readPayload returns the --hex payload, or the contents of --input.
func readPayload(c *cli.Context) ([]byte, error) {
	if c.IsSet("hex") {
		cleaned := strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(c.String("hex"))
		b, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid --hex payload: %w", err)
		}
		return b, nil
	}

	var in io.Reader = c.App.Reader
	if path := c.String("input"); path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot open input: %w", err)
		}
		defer iox.DiscardClose(f)
		in = f
	}
	if in == nil {
		in = os.Stdin
	}
	return io.ReadAll(in)
}

func writeOutput(c *cli.Context, frame []byte) error {
	path := c.String("output")
	if path == "-" || path == "" {
		out := c.App.Writer
		if out == nil {
			out = os.Stdout
		}
		_, err := out.Write(frame)
		return err
	}
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	return nil
}
