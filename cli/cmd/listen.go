package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewire/adapter"
	"github.com/pithecene-io/framewire/adapter/redis"
	"github.com/pithecene-io/framewire/adapter/webhook"
	"github.com/pithecene-io/framewire/archive"
	"github.com/pithecene-io/framewire/cli/config"
	"github.com/pithecene-io/framewire/cli/render"
	"github.com/pithecene-io/framewire/cli/tui"
	"github.com/pithecene-io/framewire/decode/kiss"
	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/metrics"
	"github.com/pithecene-io/framewire/pipeline"
	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/port"
	canport "github.com/pithecene-io/framewire/port/can"
	"github.com/pithecene-io/framewire/port/serial"
	"github.com/pithecene-io/framewire/types"
)

// Exit codes of the decode and listen commands.
const (
	exitSuccess          = 0
	exitUsage            = 1
	exitTransportFailure = 2
	exitPolicyFailure    = 3
)

// defaultRetries applies when neither the config nor --retries sets one.
const defaultRetries = 3

// monitorRefresh is how often the TUI monitor receives fresh counters.
const monitorRefresh = time.Second

// ListenCommand returns the listen command.
// It decodes a live transport and delivers frames downstream until
// interrupted or the source closes.
func ListenCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML or TOML config file",
		},
		&cli.StringFlag{
			Name:  "stream",
			Usage: "Stream name (defaults to the device base name)",
		},
		// Transport flags
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Transport: serial, can or file",
			Value: config.TransportSerial,
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "Serial device path or capture file path",
		},
		&cli.IntFlag{
			Name:  "baud",
			Usage: "Serial line speed",
			Value: serial.DefaultBaudRate,
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Maximum bytes per read",
			Value: port.DefaultBufferSize,
		},
		&cli.StringSliceFlag{
			Name:  "can-interfaces",
			Usage: "SocketCAN interfaces to open",
		},
		&cli.IntFlag{
			Name:  "can-interface",
			Usage: "Index of the interface carrying the stream",
		},
		&cli.UintFlag{
			Name:  "can-id",
			Usage: "Only decode frames with this arbitration ID",
		},
		&cli.DurationFlag{
			Name:  "period",
			Usage: "Drain the source on this period instead of blocking (0 = block)",
		},
		&cli.IntFlag{
			Name:  "max-frame-size",
			Usage: "Maximum frame payload in bytes (0 = unbounded)",
		},
		// Policy flags
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Delivery policy: strict, buffered, streaming or noop",
			Value: config.PolicyStrict,
		},
		&cli.IntFlag{
			Name:  "buffer-frames",
			Usage: "Max buffered frames (buffered policy)",
		},
		&cli.Int64Flag{
			Name:  "buffer-bytes",
			Usage: "Max buffer size in bytes (buffered policy)",
		},
		&cli.IntFlag{
			Name:  "flush-count",
			Usage: "Flush after N frames (streaming policy)",
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "Flush every interval (streaming policy)",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Downstream adapter: stdout, redis, webhook or archive",
			Value: config.AdapterStdout,
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Redis URL, webhook endpoint, or archive directory or s3://bucket/prefix",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel ({stream} is replaced by the stream name)",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "Frame encoding: json or msgpack",
			Value: string(adapter.CodecJSON),
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Publish retry attempts",
			Value: defaultRetries,
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset ID",
			Value: archive.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "AWS region for s3:// archives",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom S3 endpoint (MinIO, R2)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
		// Output flags
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the summary",
		},
		TUIFlag,
	}
	flags = append(flags, MarkerFlags()...)

	return &cli.Command{
		Name:   "listen",
		Usage:  "Decode a live transport and deliver frames downstream",
		Flags:  flags,
		Action: listenAction,
	}
}

// listenOptions is the merged result of the config file and flags.
type listenOptions struct {
	stream    string
	transport config.TransportConfig
	markers   kiss.Markers
	maxFrame  int
	policy    config.PolicyConfig
	adapter   config.AdapterConfig
	retries   int
	logLevel  string
	tui       bool
}

func listenAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cfg = loaded
	}

	opts, err := resolveListenOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if opts.tui && !isStderrTTY() {
		return cli.Exit("--tui requires a terminal", exitUsage)
	}

	meta := &types.StreamMeta{
		Stream:    opts.stream,
		Transport: opts.transport.Type,
		Device:    deviceName(opts.transport),
	}

	logger := log.NewNop()
	if !opts.tui {
		logger, err = log.NewLoggerWithLevel(meta, c.App.ErrWriter, opts.logLevel)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid log level %q: %v", opts.logLevel, err), exitUsage)
		}
	}
	defer func() { _ = logger.Sync() }()

	policyName := opts.policy.Name
	if opts.tui && opts.adapter.Type == config.AdapterStdout {
		// Frames are shown by the monitor instead of written to stdout.
		policyName = config.PolicyNoop
	}
	collector := metrics.NewCollector(meta.Stream, meta.Transport, policyName)

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var sink policy.Sink
	if policyName != config.PolicyNoop {
		sink, err = buildSink(ctx, opts, c.App.Writer)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitUsage)
		}
	}
	pol, err := buildPolicy(policyName, opts.policy, sink, logger)
	if err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		return cli.Exit(fmt.Sprintf("invalid policy config: %v", err), exitUsage)
	}

	source, err := openSource(ctx, opts.transport, logger, collector)
	if err != nil {
		_ = pol.Close()
		return cli.Exit(fmt.Sprintf("failed to open %s transport: %v", opts.transport.Type, err), exitTransportFailure)
	}

	var monitor *tui.Monitor
	if opts.tui {
		monitor = tui.NewMonitor(fmt.Sprintf("framewire %s (%s)", meta.Stream, meta.Device), tea.WithAltScreen())
	}

	pcfg := pipeline.Config{
		Source:       source,
		Meta:         meta,
		Markers:      opts.markers,
		MaxFrameSize: opts.maxFrame,
		Policy:       pol,
		Logger:       logger,
		Collector:    collector,
		Period:       opts.transport.Period.Duration,
	}
	if monitor != nil {
		pcfg.OnFrame = monitor.Frame
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		_ = source.Close()
		_ = pol.Close()
		return cli.Exit(err.Error(), exitUsage)
	}

	logger.Info("listening", map[string]any{
		"policy":  policyName,
		"adapter": opts.adapter.Type,
		"markers": fmt.Sprintf("%02X %02X %02X %02X", opts.markers.FEND, opts.markers.FESC, opts.markers.TFEND, opts.markers.TFESC),
	})

	var runErr error
	if monitor != nil {
		runErr = runWithMonitor(ctx, cancel, p, monitor, collector)
	} else {
		runErr = p.Run(ctx)
	}

	summary := p.Summary()
	closeErr := p.Close()

	if !c.Bool("quiet") && !opts.tui {
		printSummary(c.App.ErrWriter, summary)
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("listen failed: %v", runErr), exitCodeFor(runErr))
	}
	if closeErr != nil {
		return cli.Exit(fmt.Sprintf("close failed: %v", closeErr), exitPolicyFailure)
	}
	return nil
}

// runWithMonitor runs the pipeline in the background while the monitor owns
// the terminal. Quitting the monitor cancels the pipeline.
func runWithMonitor(ctx context.Context, cancel context.CancelFunc, p *pipeline.Pipeline, monitor *tui.Monitor, collector *metrics.Collector) error {
	done := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		monitor.Snapshot(collector.Snapshot())
		monitor.Done(err)
		done <- err
	}()

	go func() {
		ticker := time.NewTicker(monitorRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				monitor.Snapshot(collector.Snapshot())
			case <-ctx.Done():
				return
			}
		}
	}()

	uiErr := monitor.Run()
	cancel()
	runErr := <-done
	if runErr != nil {
		return runErr
	}
	return uiErr
}

// resolveListenOptions merges cfg with flags. Flags set on the command line
// win over the config file, which wins over flag defaults.
func resolveListenOptions(c *cli.Context, cfg *config.Config) (listenOptions, error) {
	if err := cfg.Validate(); err != nil {
		return listenOptions{}, fmt.Errorf("invalid config: %w", err)
	}

	t := cfg.Transport
	t.Type = stringOpt(c, "transport", t.Type)
	switch t.Type {
	case config.TransportSerial:
		t.Serial.Path = stringOpt(c, "device", t.Serial.Path)
		t.Serial.BaudRate = intOpt(c, "baud", t.Serial.BaudRate)
		t.Serial.BufferSize = intOpt(c, "chunk-size", t.Serial.BufferSize)
		if t.Serial.Path == "" {
			return listenOptions{}, errors.New("serial transport requires --device or transport.serial.path")
		}
	case config.TransportFile:
		t.File.Path = stringOpt(c, "device", t.File.Path)
		t.File.ChunkSize = intOpt(c, "chunk-size", t.File.ChunkSize)
		if t.File.Path == "" {
			return listenOptions{}, errors.New("file transport requires --device or transport.file.path")
		}
	case config.TransportCAN:
		if c.IsSet("can-interfaces") || len(t.CAN.Interfaces) == 0 {
			t.CAN.Interfaces = c.StringSlice("can-interfaces")
		}
		t.CAN.Interface = intOpt(c, "can-interface", t.CAN.Interface)
		if c.IsSet("can-id") {
			id := uint32(c.Uint("can-id"))
			t.CAN.ID = &id
		}
	default:
		return listenOptions{}, fmt.Errorf("invalid transport: %s (must be serial, can or file)", t.Type)
	}
	if c.IsSet("period") || t.Period.Duration == 0 {
		t.Period.Duration = c.Duration("period")
	}

	markers, err := markersFromFlags(c, cfg.KISS.Markers())
	if err != nil {
		return listenOptions{}, fmt.Errorf("invalid markers: %w", err)
	}

	pc := cfg.Policy
	pc.Name = stringOpt(c, "policy", pc.Name)
	pc.BufferFrames = intOpt(c, "buffer-frames", pc.BufferFrames)
	if c.IsSet("buffer-bytes") || pc.BufferBytes == 0 {
		pc.BufferBytes = c.Int64("buffer-bytes")
	}
	pc.FlushCount = intOpt(c, "flush-count", pc.FlushCount)
	if c.IsSet("flush-interval") || pc.FlushInterval.Duration == 0 {
		pc.FlushInterval.Duration = c.Duration("flush-interval")
	}

	ac := cfg.Adapter
	ac.Type = stringOpt(c, "adapter", ac.Type)
	ac.URL = stringOpt(c, "adapter-url", ac.URL)
	ac.Channel = stringOpt(c, "adapter-channel", ac.Channel)
	ac.Codec = stringOpt(c, "codec", ac.Codec)
	if c.IsSet("adapter-timeout") || ac.Timeout.Duration == 0 {
		ac.Timeout.Duration = c.Duration("adapter-timeout")
	}
	ac.Archive.Dataset = stringOpt(c, "archive-dataset", ac.Archive.Dataset)
	ac.Archive.Region = stringOpt(c, "s3-region", ac.Archive.Region)
	ac.Archive.Endpoint = stringOpt(c, "s3-endpoint", ac.Archive.Endpoint)
	if c.IsSet("s3-path-style") {
		ac.Archive.UsePathStyle = c.Bool("s3-path-style")
	}
	retries := c.Int("retries")
	if !c.IsSet("retries") && ac.Retries != nil {
		retries = *ac.Retries
	}

	opts := listenOptions{
		transport: t,
		markers:   markers,
		maxFrame:  intOpt(c, "max-frame-size", cfg.KISS.MaxFrameSize),
		policy:    pc,
		adapter:   ac,
		retries:   retries,
		logLevel:  stringOpt(c, "log-level", cfg.Log.Level),
		tui:       c.Bool("tui"),
	}
	opts.stream = stringOpt(c, "stream", cfg.Stream)
	if opts.stream == "" {
		opts.stream = defaultStreamName(t)
	}

	// Re-validate the merged result so flag values get the same checks.
	merged := config.Config{Transport: t, Policy: pc, Adapter: ac}
	if err := merged.Validate(); err != nil {
		return listenOptions{}, err
	}
	return opts, nil
}

// stringOpt returns the flag value when it was set explicitly or the config
// leaves the field empty.
func stringOpt(c *cli.Context, flag, fromConfig string) string {
	if c.IsSet(flag) || fromConfig == "" {
		return c.String(flag)
	}
	return fromConfig
}

func intOpt(c *cli.Context, flag string, fromConfig int) int {
	if c.IsSet(flag) || fromConfig == 0 {
		return c.Int(flag)
	}
	return fromConfig
}

func deviceName(t config.TransportConfig) string {
	switch t.Type {
	case config.TransportSerial:
		return t.Serial.Path
	case config.TransportFile:
		return t.File.Path
	case config.TransportCAN:
		interfaces := t.CAN.Interfaces
		if len(interfaces) == 0 {
			interfaces = canport.DefaultInterfaces
		}
		return strings.Join(interfaces, ",")
	default:
		return ""
	}
}

func defaultStreamName(t config.TransportConfig) string {
	switch t.Type {
	case config.TransportCAN:
		return fmt.Sprintf("can%d", t.CAN.Interface)
	default:
		if name := filepath.Base(deviceName(t)); name != "." && name != "/" {
			return name
		}
		return t.Type
	}
}

// openSource opens the configured transport as a byte receiver.
func openSource(ctx context.Context, t config.TransportConfig, logger *log.Logger, collector *metrics.Collector) (port.Receiver[[]byte], error) {
	threadOpts := []port.Option{port.WithLogger(logger), port.WithCollector(collector)}

	switch t.Type {
	case config.TransportSerial:
		return serial.OpenThread(serial.Config{
			Path:        t.Serial.Path,
			BaudRate:    t.Serial.BaudRate,
			BufferSize:  t.Serial.BufferSize,
			ReadTimeout: t.Serial.ReadTimeout.Duration,
		}, threadOpts...)

	case config.TransportCAN:
		th, err := canport.OpenThread(ctx, canport.Config{Interfaces: t.CAN.Interfaces}, threadOpts...)
		if err != nil {
			return nil, err
		}
		return port.Bytes[canport.Data](th, canPayload(t.CAN.Interface, t.CAN.ID)), nil

	case config.TransportFile:
		f, err := os.Open(t.File.Path)
		if err != nil {
			return nil, err
		}
		return port.NewThread[[]byte, []byte](port.NewStreamPort(port.ReadOnly(f), t.File.ChunkSize), threadOpts...), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", t.Type)
	}
}

// canPayload selects the bytes of frames on interface iface, and with
// arbitration ID id when set.
func canPayload(iface int, id *uint32) func(canport.Data) []byte {
	return func(d canport.Data) []byte {
		if d.Interface != iface {
			return nil
		}
		if id != nil && d.Frame.ID != *id {
			return nil
		}
		return canport.Payload(d)
	}
}

// buildSink creates the policy sink. The archive adapter writes batches
// directly; every other adapter is wrapped with adapter.NewSink.
func buildSink(ctx context.Context, opts listenOptions, out io.Writer) (policy.Sink, error) {
	if opts.adapter.Type == config.AdapterArchive {
		ac := opts.adapter.Archive
		return archive.Open(ctx, archive.Config{Dataset: ac.Dataset, Stream: opts.stream}, opts.adapter.URL, archive.S3Config{
			Region:       ac.Region,
			Endpoint:     ac.Endpoint,
			UsePathStyle: ac.UsePathStyle,
		})
	}
	a, err := buildAdapter(opts, out)
	if err != nil {
		return nil, err
	}
	return adapter.NewSink(a), nil
}

// buildAdapter creates the downstream adapter. stdout frames go to out.
func buildAdapter(opts listenOptions, out io.Writer) (adapter.Adapter, error) {
	ac := opts.adapter
	codec, err := adapter.ParseCodec(ac.Codec)
	if err != nil {
		return nil, err
	}

	switch ac.Type {
	case config.AdapterStdout, "":
		return adapter.NewWriter(noClose{out}, codec), nil
	case config.AdapterRedis:
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Codec:   codec,
			Timeout: ac.Timeout.Duration,
			Retries: opts.retries,
		})
	case config.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Codec:   codec,
			Timeout: ac.Timeout.Duration,
			Retries: opts.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// noClose keeps adapter.Writer from closing stdout.
type noClose struct {
	io.Writer
}

// buildPolicy creates the named policy over sink. sink may be nil for the
// noop policy.
func buildPolicy(name string, pc config.PolicyConfig, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	switch name {
	case config.PolicyStrict, "":
		if pc.BufferFrames > 0 || pc.BufferBytes > 0 || pc.FlushCount > 0 || pc.FlushInterval.Duration > 0 {
			logger.Sugar().Warnf("buffer and flush settings ignored for %s policy", config.PolicyStrict)
		}
		return policy.NewStrictPolicy(sink), nil

	case config.PolicyBuffered:
		bc := policy.DefaultBufferedConfig()
		if pc.BufferFrames > 0 || pc.BufferBytes > 0 {
			bc.MaxBufferFrames = pc.BufferFrames
			bc.MaxBufferBytes = pc.BufferBytes
		}
		bc.Logger = logger
		return policy.NewBufferedPolicy(sink, bc)

	case config.PolicyStreaming:
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    pc.FlushCount,
			FlushInterval: pc.FlushInterval.Duration,
			Logger:        logger,
		})

	case config.PolicyNoop:
		return policy.NewNoopPolicy(), nil

	default:
		return nil, fmt.Errorf("invalid policy: %s (must be strict, buffered, streaming or noop)", name)
	}
}

// exitCodeFor maps a pipeline error to an exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case pipeline.IsTransportError(err):
		return exitTransportFailure
	case pipeline.IsPolicyError(err):
		return exitPolicyFailure
	default:
		return exitUsage
	}
}

// SummaryView is the rendered end-of-stream summary.
type SummaryView struct {
	Stream          string `json:"stream"`
	Transport       string `json:"transport"`
	Device          string `json:"device"`
	Frames          int64  `json:"frames"`
	Decoded         int64  `json:"decoded"`
	Aborted         int64  `json:"aborted"`
	Bytes           int64  `json:"bytes"`
	ReadErrors      int64  `json:"read_errors"`
	DecodeFailures  int64  `json:"decode_failures"`
	FramesDelivered int64  `json:"delivered"`
	FramesDropped   int64  `json:"dropped"`
	Flushes         int64  `json:"flushes"`
	PolicyErrors    int64  `json:"policy_errors"`
}

func summaryView(s pipeline.Summary) SummaryView {
	return SummaryView{
		Stream:          s.Meta.Stream,
		Transport:       s.Meta.Transport,
		Device:          s.Meta.Device,
		Frames:          s.Seq,
		Decoded:         s.Metrics.FramesDecoded,
		Aborted:         s.Metrics.FramesAborted,
		Bytes:           s.Metrics.BytesAccepted,
		ReadErrors:      s.Metrics.PortReadErrors,
		DecodeFailures:  s.Metrics.DecodeFailures,
		FramesDelivered: s.Policy.FramesDelivered,
		FramesDropped:   s.Policy.FramesDropped,
		Flushes:         s.Policy.FlushCount,
		PolicyErrors:    s.Policy.Errors,
	}
}

func printSummary(w io.Writer, s pipeline.Summary) {
	if w == nil {
		w = os.Stderr
	}
	_ = render.NewRendererWithWriter(render.FormatTable, true, w).Render(summaryView(s))
}
