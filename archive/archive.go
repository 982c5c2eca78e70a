// Package archive stores frame events in a Lode dataset.
//
// Frames are written as JSONL records under a Hive layout partitioned by
// stream, day and frame kind. Each WriteFrames call commits one snapshot,
// so a policy batch maps to one immutable write.
package archive

import (
	"context"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/types"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "framewire"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"stream", "day", "kind"}

// Config holds archive sink settings.
type Config struct {
	// Dataset is the Lode dataset ID. Empty selects DefaultDataset.
	Dataset string
	// Stream overrides the stream partition of every record. Empty uses
	// each frame's own Stream field.
	Stream string
}

func (c Config) dataset() string {
	if c.Dataset == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// Sink is a policy.Sink backed by a Lode dataset.
type Sink struct {
	cfg     Config
	dataset lode.Dataset

	mu     sync.Mutex
	closed bool
}

// NewSink creates a sink over filesystem storage rooted at root.
func NewSink(cfg Config, root string) (*Sink, error) {
	return NewSinkWithFactory(cfg, lode.NewFSFactory(root))
}

// NewSinkWithFactory creates a sink over a custom store factory.
// Use lode.NewMemoryFactory() in tests.
func NewSinkWithFactory(cfg Config, factory lode.StoreFactory) (*Sink, error) {
	ds, err := newDataset(cfg.dataset(), factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.dataset())
	}
	return &Sink{cfg: cfg, dataset: ds}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteFrames writes the batch as one snapshot. An empty batch is a no-op.
func (s *Sink) WriteFrames(ctx context.Context, frames []*types.FrameEvent) error {
	if len(frames) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	records := make([]any, 0, len(frames))
	for _, f := range frames {
		records = append(records, toFrameRecordMap(f, s.cfg.Stream))
	}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, s.cfg.dataset())
	}
	return nil
}

// Close marks the sink closed. Later writes fail with ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ policy.Sink = (*Sink)(nil)
