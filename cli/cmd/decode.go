package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/cli/render"
	"github.com/pithecene-io/framewire/cli/tui"
	"github.com/pithecene-io/framewire/decode"
	"github.com/pithecene-io/framewire/decode/kiss"
	"github.com/pithecene-io/framewire/decode/lenprefix"
	"github.com/pithecene-io/framewire/iox"
	"github.com/pithecene-io/framewire/metrics"
	"github.com/pithecene-io/framewire/pipeline"
	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/port"
	"github.com/pithecene-io/framewire/types"
)

// clockNow stamps decoded frames.
var clockNow = time.Now

// Framing modes of the decode command.
const (
	modeKISS      = "kiss"
	modeLenPrefix = "lenprefix"
)

// DecodeCommand returns the decode command.
// It decodes a capture file (or stdin) and prints the frames.
func DecodeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Capture file to decode (- for stdin)",
			Value:   "-",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Bytes per chunk fed to the decoder",
			Value: port.DefaultBufferSize,
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Framing: kiss or lenprefix",
			Value: modeKISS,
		},
		&cli.IntFlag{
			Name:  "max-frame-size",
			Usage: "Maximum frame payload in bytes (0 = unbounded)",
		},
	}
	flags = append(flags, MarkerFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "decode",
		Usage:  "Decode frames from a capture file",
		Flags:  flags,
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	markers, err := markersFromFlags(c, kiss.DefaultMarkers())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid markers: %v", err), exitUsage)
	}

	in, name, err := openInput(c.String("input"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	defer iox.DiscardClose(in)

	var (
		events []*types.FrameEvent
		snap   metrics.Snapshot
	)
	switch c.String("mode") {
	case modeKISS:
		events, snap, err = decodeKISS(c.Context, in, name, c.Int("chunk-size"), markers, c.Int("max-frame-size"))
	case modeLenPrefix:
		events, snap, err = decodeLenPrefix(c.Context, in, name, c.Int("chunk-size"), c.Int("max-frame-size"))
	default:
		return cli.Exit(fmt.Sprintf("invalid mode: %s (must be kiss or lenprefix)", c.String("mode")), exitUsage)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("decode failed: %v", err), exitTransportFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, snap)
	}
	return r.Render(render.FrameRows(events))
}

// openInput opens path, or stdin for "-".
func openInput(path string) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("cannot open input: %w", err)
	}
	return f, path, nil
}

// decodeKISS runs a pipeline over in and collects every frame it delivers.
func decodeKISS(ctx context.Context, in io.ReadCloser, name string, chunkSize int, markers kiss.Markers, maxFrame int) ([]*types.FrameEvent, metrics.Snapshot, error) {
	meta := &types.StreamMeta{Stream: name, Transport: "file", Device: name}
	collector := metrics.NewCollector(name, "file", "strict")

	var events []*types.FrameEvent
	sink := policy.SinkFunc(func(_ context.Context, frames []*types.FrameEvent) error {
		events = append(events, frames...)
		return nil
	})

	source := port.NewThread[[]byte, []byte](
		port.NewStreamPort(port.ReadOnly(in), chunkSize),
		port.WithCollector(collector),
	)
	p, err := pipeline.New(pipeline.Config{
		Source:       source,
		Meta:         meta,
		Markers:      markers,
		MaxFrameSize: maxFrame,
		Policy:       policy.NewStrictPolicy(sink),
		Collector:    collector,
	})
	if err != nil {
		iox.DiscardClose(source)
		return nil, metrics.Snapshot{}, err
	}
	defer iox.DiscardErr(p.Close)

	if err := p.Run(ctx); err != nil {
		return nil, metrics.Snapshot{}, err
	}
	return events, p.Summary().Metrics, nil
}

// decodeLenPrefix decodes length-prefixed frames from in.
func decodeLenPrefix(ctx context.Context, in io.Reader, name string, chunkSize, maxFrame int) ([]*types.FrameEvent, metrics.Snapshot, error) {
	if chunkSize <= 0 {
		chunkSize = port.DefaultBufferSize
	}

	collector := metrics.NewCollector(name, "file", "none")
	dec := lenprefix.NewRaw()
	if maxFrame > 0 {
		dec = dec.WithMaxPayloadSize(uint32(maxFrame))
	}
	collect := &decode.Collect[[]byte]{}
	stream := decode.NewStream[[]byte](dec, collect,
		decode.WithName(name),
		decode.WithCollector(collector),
	)

	buf := make([]byte, chunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := stream.Accept(ctx, chunk); err != nil {
				return nil, metrics.Snapshot{}, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, metrics.Snapshot{}, rerr
		}
	}
	now := types.FormatTimestamp(clockNow())
	payloads := collect.Take()
	events := make([]*types.FrameEvent, len(payloads))
	for i, payload := range payloads {
		events[i] = &types.FrameEvent{
			SchemaVersion: types.SchemaVersion,
			Stream:        name,
			Seq:           int64(i + 1),
			Kind:          types.FrameKindData,
			Payload:       payload,
			Ts:            now,
		}
	}
	return events, collector.Snapshot(), nil
}
