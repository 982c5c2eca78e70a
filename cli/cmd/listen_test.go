package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewire/adapter"
	"github.com/pithecene-io/framewire/archive"
	"github.com/pithecene-io/framewire/cli/config"
	"github.com/pithecene-io/framewire/decode/kiss"
	"github.com/pithecene-io/framewire/pipeline"
	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/port/can"
	"github.com/pithecene-io/framewire/types"

	gocan "go.einride.tech/can"
)

// threeFrames is a capture of three data frames.
func threeFrames(t *testing.T) []byte {
	t.Helper()
	var capture []byte
	for _, p := range []string{"a", "bb", "ccc"} {
		f, err := kiss.EncodeFrame(kiss.DefaultMarkers(), 2, kiss.CmdData, []byte(p))
		if err != nil {
			t.Fatal(err)
		}
		capture = append(capture, f...)
	}
	return capture
}

func TestListenAction_FileToStdout(t *testing.T) {
	path := writeTemp(t, "tnc.bin", threeFrames(t))

	app, stdout, stderr := newTestApp(ListenCommand())
	err := app.Run([]string{"framewire", "listen",
		"--transport", "file", "--device", path, "--chunk-size", "4", "--log-level", "error"})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	var seqs []int64
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		frame, err := adapter.CodecJSON.Unmarshal(sc.Bytes())
		if err != nil {
			t.Fatalf("invalid frame line %q: %v", sc.Text(), err)
		}
		if frame.Stream != "tnc.bin" || frame.Port != 2 {
			t.Errorf("unexpected frame %+v", frame)
		}
		seqs = append(seqs, frame.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Errorf("seqs = %v, want [1 2 3]", seqs)
	}

	if !strings.Contains(stderr.String(), "delivered:") {
		t.Errorf("summary missing from stderr:\n%s", stderr.String())
	}
}

func TestListenAction_ConfigFile(t *testing.T) {
	capture := writeTemp(t, "capture.bin", threeFrames(t))
	cfgPath := writeTemp(t, "framewire.toml", []byte(`stream = "bench"

[transport]
type = "file"

[transport.file]
path = "`+capture+`"

[policy]
name = "buffered"
buffer_frames = 10

[log]
level = "error"
`))

	app, stdout, _ := newTestApp(ListenCommand())
	if err := app.Run([]string{"framewire", "listen", "--config", cfgPath, "--quiet"}); err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d frames, want 3:\n%s", len(lines), stdout.String())
	}
	if !strings.Contains(lines[0], `"stream":"bench"`) {
		t.Errorf("config stream name not applied: %s", lines[0])
	}
}

func TestListenAction_Archive(t *testing.T) {
	path := writeTemp(t, "tnc.bin", threeFrames(t))
	dir := t.TempDir()

	app, stdout, _ := newTestApp(ListenCommand())
	err := app.Run([]string{"framewire", "listen", "--transport", "file", "--device", path,
		"--stream", "radio", "--policy", "buffered",
		"--adapter", "archive", "--adapter-url", dir, "--archive-dataset", "captures",
		"--quiet", "--log-level", "error"})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("archive adapter wrote to stdout: %q", stdout.String())
	}

	ds, err := archive.OpenReadDataset("captures", lode.NewFSFactory(dir))
	if err != nil {
		t.Fatalf("OpenReadDataset failed: %v", err)
	}
	frames, err := archive.ReadFrames(t.Context(), ds, "radio")
	if err != nil {
		t.Fatalf("ReadFrames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("archived %d frames, want 3", len(frames))
	}
	if !bytes.Equal(frames[2].Payload[1:], []byte("ccc")) {
		t.Errorf("last payload = %q, want type byte + ccc", frames[2].Payload)
	}
}

func TestListenAction_Msgpack(t *testing.T) {
	path := writeTemp(t, "tnc.bin", threeFrames(t)[:4]) // first frame only

	app, stdout, _ := newTestApp(ListenCommand())
	err := app.Run([]string{"framewire", "listen", "--transport", "file", "--device", path,
		"--codec", "msgpack", "--quiet", "--log-level", "error"})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	frame, err := adapter.CodecMsgpack.Unmarshal(stdout.Bytes())
	if err != nil {
		t.Fatalf("invalid msgpack output: %v", err)
	}
	if !bytes.Equal(frame.Payload, []byte{0x20, 'a'}) {
		t.Errorf("payload = % X", frame.Payload)
	}
}

func TestListenAction_PolicyFailureExitCode(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	path := writeTemp(t, "tnc.bin", threeFrames(t))
	app, _, _ := newTestApp(ListenCommand())
	err := app.Run([]string{"framewire", "listen", "--transport", "file", "--device", path,
		"--adapter", "webhook", "--adapter-url", srv.URL, "--quiet", "--log-level", "error"})
	if err == nil {
		t.Fatal("expected policy failure")
	}
	if code := exitCode(t, err); code != exitPolicyFailure {
		t.Errorf("exit code = %d, want %d", code, exitPolicyFailure)
	}
	// 4xx responses are not retried.
	if n := requests.Load(); n != 1 {
		t.Errorf("webhook requests = %d, want 1", n)
	}
}

func TestListenAction_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{"serial without device", []string{"--transport", "serial"}, exitUsage, "requires --device"},
		{"unknown transport", []string{"--transport", "usb"}, exitUsage, "invalid transport"},
		{"missing capture", []string{"--transport", "file", "--device", "/nonexistent/capture.bin"}, exitTransportFailure, "failed to open file transport"},
		{"redis without url", []string{"--transport", "file", "--device", "x", "--adapter", "redis"}, exitUsage, "requires a url"},
		{"bad codec", []string{"--transport", "file", "--device", "x", "--codec", "xml"}, exitUsage, "unknown codec"},
		{"streaming without trigger", []string{"--transport", "file", "--device", "x", "--policy", "streaming"}, exitUsage, "invalid policy config"},
		{"config not found", []string{"--config", "/nonexistent/framewire.yaml"}, exitUsage, "config file not found"},
		{"bad log level", []string{"--transport", "file", "--device", "x", "--log-level", "loud"}, exitUsage, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp(ListenCommand())
			err := app.Run(append([]string{"framewire", "listen"}, tt.args...))
			if err == nil {
				t.Fatal("expected error")
			}
			if code := exitCode(t, err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (%v)", code, tt.wantCode, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestResolveListenOptions_Precedence(t *testing.T) {
	retries := 7
	fend := uint8(0x7E)
	cfg := &config.Config{
		Stream: "from-config",
		Transport: config.TransportConfig{
			Type:   config.TransportSerial,
			Period: config.Duration{Duration: 50 * time.Millisecond},
			Serial: config.SerialConfig{Path: "/dev/ttyS0", BaudRate: 1200},
		},
		KISS:    config.KISSConfig{FEND: &fend, MaxFrameSize: 512},
		Policy:  config.PolicyConfig{Name: config.PolicyStreaming, FlushCount: 5},
		Adapter: config.AdapterConfig{Type: config.AdapterRedis, URL: "redis://cfg:6379", Retries: &retries},
	}

	c := newTestCLIContext(t, ListenCommand().Flags, map[string]string{
		"device": "/dev/ttyUSB1",
		"policy": "buffered",
	})
	opts, err := resolveListenOptions(c, cfg)
	if err != nil {
		t.Fatalf("resolveListenOptions failed: %v", err)
	}

	if opts.stream != "from-config" {
		t.Errorf("stream = %q", opts.stream)
	}
	if opts.transport.Serial.Path != "/dev/ttyUSB1" {
		t.Errorf("CLI device should win, got %q", opts.transport.Serial.Path)
	}
	if opts.transport.Serial.BaudRate != 1200 {
		t.Errorf("config baud should apply, got %d", opts.transport.Serial.BaudRate)
	}
	if opts.transport.Period.Duration != 50*time.Millisecond {
		t.Errorf("config period should apply, got %v", opts.transport.Period.Duration)
	}
	if opts.policy.Name != config.PolicyBuffered || opts.policy.FlushCount != 5 {
		t.Errorf("policy = %+v", opts.policy)
	}
	if opts.markers.FEND != 0x7E || opts.markers.FESC != kiss.FESC {
		t.Errorf("markers = %+v", opts.markers)
	}
	if opts.maxFrame != 512 {
		t.Errorf("maxFrame = %d", opts.maxFrame)
	}
	if opts.retries != 7 {
		t.Errorf("config retries should apply, got %d", opts.retries)
	}
	if opts.adapter.Codec != string(adapter.CodecJSON) {
		t.Errorf("codec default = %q", opts.adapter.Codec)
	}
}

func TestResolveListenOptions_CAN(t *testing.T) {
	c := newTestCLIContext(t, ListenCommand().Flags, map[string]string{
		"transport":      "can",
		"can-interfaces": "vcan0,vcan1",
		"can-interface":  "1",
		"can-id":         "0x123",
	})
	opts, err := resolveListenOptions(c, &config.Config{})
	if err != nil {
		t.Fatalf("resolveListenOptions failed: %v", err)
	}
	if opts.stream != "can1" {
		t.Errorf("stream = %q, want can1", opts.stream)
	}
	if opts.transport.CAN.ID == nil || *opts.transport.CAN.ID != 0x123 {
		t.Errorf("can id = %v", opts.transport.CAN.ID)
	}
	if got := deviceName(opts.transport); got != "vcan0,vcan1" {
		t.Errorf("deviceName = %q", got)
	}
}

func TestCANPayload(t *testing.T) {
	id := uint32(0x123)
	extract := canPayload(1, &id)

	frame := gocan.Frame{ID: 0x123, Length: 2, Data: gocan.Data{0xC0, 0x01}}
	if got := extract(can.Data{Interface: 1, Frame: frame}); !bytes.Equal(got, []byte{0xC0, 0x01}) {
		t.Errorf("matching frame = % X", got)
	}
	if got := extract(can.Data{Interface: 0, Frame: frame}); got != nil {
		t.Errorf("other interface should be skipped, got % X", got)
	}
	frame.ID = 0x124
	if got := extract(can.Data{Interface: 1, Frame: frame}); got != nil {
		t.Errorf("other ID should be skipped, got % X", got)
	}
}

func TestBuildPolicy(t *testing.T) {
	sink := policy.NewStubSink()
	tests := []struct {
		name    string
		policy  string
		cfg     config.PolicyConfig
		wantErr bool
	}{
		{name: "strict", policy: config.PolicyStrict},
		{name: "buffered defaults", policy: config.PolicyBuffered},
		{name: "buffered limits", policy: config.PolicyBuffered, cfg: config.PolicyConfig{BufferFrames: 10}},
		{name: "streaming", policy: config.PolicyStreaming, cfg: config.PolicyConfig{FlushCount: 10}},
		{name: "streaming without trigger", policy: config.PolicyStreaming, wantErr: true},
		{name: "noop", policy: config.PolicyNoop},
		{name: "unknown", policy: "lossy", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildPolicy(tt.policy, tt.cfg, sink, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildPolicy failed: %v", err)
			}
			_ = p.Close()
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	if got := exitCodeFor(nil); got != exitSuccess {
		t.Errorf("nil = %d", got)
	}
	if got := exitCodeFor(&pipeline.Error{Kind: pipeline.ErrorTransport, Err: errTest}); got != exitTransportFailure {
		t.Errorf("transport = %d", got)
	}
	if got := exitCodeFor(&pipeline.Error{Kind: pipeline.ErrorPolicy, Err: errTest}); got != exitPolicyFailure {
		t.Errorf("policy = %d", got)
	}
	if got := exitCodeFor(errTest); got != exitUsage {
		t.Errorf("other = %d", got)
	}
}

var errTest = errors.New("boom")

func TestSummaryView(t *testing.T) {
	v := summaryView(pipeline.Summary{
		Meta: types.StreamMeta{Stream: "tnc0", Transport: "serial", Device: "/dev/ttyUSB0"},
		Seq:  4,
		Policy: policy.Stats{
			FramesDelivered: 3,
			FramesDropped:   1,
		},
	})
	if v.Stream != "tnc0" || v.Frames != 4 || v.FramesDelivered != 3 || v.FramesDropped != 1 {
		t.Errorf("summary view = %+v", v)
	}
}
