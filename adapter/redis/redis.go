// Package redis publishes frame events to a Redis pub/sub channel.
//
// Frames are encoded with the configured codec and sent with PUBLISH.
// Failed publishes are retried with exponential backoff.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/framewire/adapter"
	"github.com/pithecene-io/framewire/types"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "framewire:frames"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: framewire:frames).
	// The stream name is substituted for "{stream}" if present.
	Channel string
	// Codec is the payload encoding (default json).
	Codec adapter.Codec
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes frame events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Codec == "" {
		cfg.Codec = adapter.CodecJSON
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Channel returns the channel a frame is published to.
func (a *Adapter) Channel(frame *types.FrameEvent) string {
	return expandChannel(a.config.Channel, frame.Stream)
}

// Publish sends the frame to the configured channel.
func (a *Adapter) Publish(ctx context.Context, frame *types.FrameEvent) error {
	body, err := a.config.Codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("redis: marshal frame: %w", err)
	}
	channel := a.Channel(frame)

	return adapter.Retry(ctx, "redis", a.config.Retries, nil, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, channel, body).Err()
	})
}

// Close releases the client connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func expandChannel(channel, stream string) string {
	return strings.ReplaceAll(channel, "{stream}", stream)
}

var _ adapter.Adapter = (*Adapter)(nil)
