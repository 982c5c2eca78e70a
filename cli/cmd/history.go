package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/archive"
	"github.com/pithecene-io/framewire/cli/render"
)

// HistoryCommand returns the history command.
// It prints frames stored by the archive adapter.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print archived frames",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "archive",
				Usage:    "Archive directory or s3://bucket/prefix",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Archive dataset ID",
				Value: archive.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "stream",
				Usage: "Only frames of this stream",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Print at most the last N frames (0 = all)",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint (MinIO, R2)",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := archive.OpenRead(c.Context, c.String("dataset"), c.String("archive"), archive.S3Config{
		Region:       c.String("s3-region"),
		Endpoint:     c.String("s3-endpoint"),
		UsePathStyle: c.Bool("s3-path-style"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitUsage)
	}

	frames, err := archive.ReadFrames(c.Context, ds, c.String("stream"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read archive: %v", err), exitTransportFailure)
	}
	if n := c.Int("limit"); n > 0 && len(frames) > n {
		frames = frames[len(frames)-n:]
	}
	return r.Render(render.FrameRows(frames))
}
