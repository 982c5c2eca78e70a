package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framewire/decode/kiss"
)

// Transport types.
const (
	TransportSerial = "serial"
	TransportCAN    = "can"
	TransportFile   = "file"
)

// Policy names.
const (
	PolicyStrict    = "strict"
	PolicyBuffered  = "buffered"
	PolicyStreaming = "streaming"
	PolicyNoop      = "noop"
)

// Adapter types.
const (
	AdapterStdout  = "stdout"
	AdapterRedis   = "redis"
	AdapterWebhook = "webhook"
	AdapterArchive = "archive"
)

// Config is a framewire config file. All values are optional and act as
// defaults for `framewire listen`; CLI flags override them.
type Config struct {
	Stream    string          `yaml:"stream" toml:"stream"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	KISS      KISSConfig      `yaml:"kiss" toml:"kiss"`
	Policy    PolicyConfig    `yaml:"policy" toml:"policy"`
	Adapter   AdapterConfig   `yaml:"adapter" toml:"adapter"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// TransportConfig selects and configures the byte source.
type TransportConfig struct {
	Type string `yaml:"type" toml:"type"`
	// Period drains the source on a ticker instead of blocking on it.
	Period Duration     `yaml:"period,omitempty" toml:"period,omitempty"`
	Serial SerialConfig `yaml:"serial" toml:"serial"`
	CAN    CANConfig    `yaml:"can" toml:"can"`
	File   FileConfig   `yaml:"file" toml:"file"`
}

// SerialConfig configures a serial-line source.
type SerialConfig struct {
	Path        string   `yaml:"path" toml:"path"`
	BaudRate    int      `yaml:"baud_rate" toml:"baud_rate"`
	BufferSize  int      `yaml:"buffer_size" toml:"buffer_size"`
	ReadTimeout Duration `yaml:"read_timeout,omitempty" toml:"read_timeout,omitempty"`
}

// CANConfig configures a SocketCAN source. Only frames on Interface are
// decoded; ID, when set, filters by arbitration ID.
type CANConfig struct {
	Interfaces []string `yaml:"interfaces" toml:"interfaces"`
	Interface  int      `yaml:"interface" toml:"interface"`
	ID         *uint32  `yaml:"id,omitempty" toml:"id,omitempty"`
}

// FileConfig configures a capture-file source.
type FileConfig struct {
	Path      string `yaml:"path" toml:"path"`
	ChunkSize int    `yaml:"chunk_size" toml:"chunk_size"`
}

// KISSConfig overrides KISS marker bytes. Unset markers keep their
// protocol defaults.
type KISSConfig struct {
	FEND         *uint8 `yaml:"fend,omitempty" toml:"fend,omitempty"`
	FESC         *uint8 `yaml:"fesc,omitempty" toml:"fesc,omitempty"`
	TFEND        *uint8 `yaml:"tfend,omitempty" toml:"tfend,omitempty"`
	TFESC        *uint8 `yaml:"tfesc,omitempty" toml:"tfesc,omitempty"`
	MaxFrameSize int    `yaml:"max_frame_size" toml:"max_frame_size"`
}

// Markers returns the configured markers over kiss.DefaultMarkers.
func (k KISSConfig) Markers() kiss.Markers {
	m := kiss.DefaultMarkers()
	if k.FEND != nil {
		m.FEND = *k.FEND
	}
	if k.FESC != nil {
		m.FESC = *k.FESC
	}
	if k.TFEND != nil {
		m.TFEND = *k.TFEND
	}
	if k.TFESC != nil {
		m.TFESC = *k.TFESC
	}
	return m
}

// PolicyConfig holds delivery policy settings.
type PolicyConfig struct {
	Name          string   `yaml:"name" toml:"name"`
	BufferFrames  int      `yaml:"buffer_frames" toml:"buffer_frames"`
	BufferBytes   int64    `yaml:"buffer_bytes" toml:"buffer_bytes"`
	FlushCount    int      `yaml:"flush_count" toml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval,omitempty" toml:"flush_interval,omitempty"`
}

// AdapterConfig holds downstream adapter settings.
type AdapterConfig struct {
	Type    string            `yaml:"type" toml:"type"`
	URL     string            `yaml:"url" toml:"url"`
	Channel string            `yaml:"channel,omitempty" toml:"channel,omitempty"`
	Codec   string            `yaml:"codec,omitempty" toml:"codec,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty" toml:"retries,omitempty"`
	Archive ArchiveConfig     `yaml:"archive,omitempty" toml:"archive,omitempty"`
}

// ArchiveConfig holds settings of the archive adapter. The archive location
// is AdapterConfig.URL: a directory or an s3://bucket/prefix URL.
type ArchiveConfig struct {
	Dataset      string `yaml:"dataset,omitempty" toml:"dataset,omitempty"`
	Region       string `yaml:"region,omitempty" toml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" toml:"use_path_style,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Validate checks names and marker bytes. Empty names are allowed and
// resolved to defaults by the caller.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Type {
	case "", TransportSerial, TransportCAN, TransportFile:
	default:
		errs = append(errs, fmt.Errorf("unknown transport type %q", c.Transport.Type))
	}

	switch c.Policy.Name {
	case "", PolicyStrict, PolicyBuffered, PolicyStreaming, PolicyNoop:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Policy.Name))
	}

	switch c.Adapter.Type {
	case "", AdapterStdout:
	case AdapterRedis, AdapterWebhook, AdapterArchive:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter %s requires a url", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter type %q", c.Adapter.Type))
	}

	if err := c.KISS.Markers().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.KISS.MaxFrameSize < 0 {
		errs = append(errs, errors.New("kiss.max_frame_size must be >= 0"))
	}

	return errors.Join(errs...)
}

// Duration wraps time.Duration for string parsing ("10s", "5m") from YAML
// and TOML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText parses a duration string. TOML strings decode through it.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration, e.g. "1m30s".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
