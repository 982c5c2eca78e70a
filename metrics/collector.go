// Package metrics provides per-stream counters.
//
// The Collector accumulates counters for one decoded stream. It is a leaf
// package with no internal dependencies. Delivery counters are absorbed from
// policy.Stats when the pipeline finishes rather than recorded live, so the
// same frame is never counted twice.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all stream counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Input
	ChunksAccepted int64
	BytesAccepted  int64
	PortReadErrors int64

	// Decoding
	FramesDecoded  int64
	FramesAborted  int64
	FramesIgnored  int64
	DecodeFailures int64
	EmitFailures   int64

	// Delivery (absorbed from policy.Stats at pipeline completion)
	FramesReceived  int64
	FramesDelivered int64
	FramesDropped   int64
	DroppedByKind   map[string]int64

	// Dimensions (informational, set at construction)
	Stream    string
	Transport string
	Policy    string
}

// Collector accumulates metrics for a single stream.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	chunksAccepted int64
	bytesAccepted  int64
	portReadErrors int64

	framesDecoded  int64
	framesAborted  int64
	framesIgnored  int64
	decodeFailures int64
	emitFailures   int64

	// Set once via AbsorbPolicyStats
	framesReceived  int64
	framesDelivered int64
	framesDropped   int64
	droppedByKind   map[string]int64

	stream    string
	transport string
	policy    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(stream, transport, policy string) *Collector {
	return &Collector{
		droppedByKind: make(map[string]int64),
		stream:        stream,
		transport:     transport,
		policy:        policy,
	}
}

// --- Input ---

// AddChunk records one accepted chunk of n bytes.
func (c *Collector) AddChunk(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksAccepted++
	c.bytesAccepted += int64(n)
	c.mu.Unlock()
}

// IncPortReadErrors records a failed read from the underlying port.
func (c *Collector) IncPortReadErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.portReadErrors++
	c.mu.Unlock()
}

// --- Decoding ---

// IncFramesDecoded records a frame closed by its end delimiter.
func (c *Collector) IncFramesDecoded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesDecoded++
	c.mu.Unlock()
}

// IncFramesAborted records a frame abandoned on an illegal escape sequence.
func (c *Collector) IncFramesAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesAborted++
	c.mu.Unlock()
}

// IncFramesIgnored records bytes consumed without producing a message
// (empty frames, padding).
func (c *Collector) IncFramesIgnored() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesIgnored++
	c.mu.Unlock()
}

// IncDecodeFailures records a decoder reporting an unrecoverable error.
func (c *Collector) IncDecodeFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeFailures++
	c.mu.Unlock()
}

// IncEmitFailures records a sink rejecting a decoded message.
func (c *Collector) IncEmitFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.emitFailures++
	c.mu.Unlock()
}

// --- Delivery (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies delivery counters from policy.Stats into the collector.
// Values are replaced, not added, so it may be called again with a newer
// snapshot (e.g. by a live monitor).
// The droppedByKind keys are string-typed frame kinds to keep this package
// free of dependencies on the types package.
func (c *Collector) AbsorbPolicyStats(received, delivered, dropped int64, droppedByKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesReceived = received
	c.framesDelivered = delivered
	c.framesDropped = dropped
	c.droppedByKind = make(map[string]int64, len(droppedByKind))
	for k, v := range droppedByKind {
		c.droppedByKind[k] = v
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]int64, len(c.droppedByKind))
	for k, v := range c.droppedByKind {
		dropped[k] = v
	}

	return Snapshot{
		ChunksAccepted: c.chunksAccepted,
		BytesAccepted:  c.bytesAccepted,
		PortReadErrors: c.portReadErrors,

		FramesDecoded:  c.framesDecoded,
		FramesAborted:  c.framesAborted,
		FramesIgnored:  c.framesIgnored,
		DecodeFailures: c.decodeFailures,
		EmitFailures:   c.emitFailures,

		FramesReceived:  c.framesReceived,
		FramesDelivered: c.framesDelivered,
		FramesDropped:   c.framesDropped,
		DroppedByKind:   dropped,

		Stream:    c.stream,
		Transport: c.transport,
		Policy:    c.policy,
	}
}
