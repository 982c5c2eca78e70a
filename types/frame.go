// Package types holds the records shared between the decoding pipeline,
// delivery policies and downstream adapters.
package types

import "time"

// FrameKind discriminates normally decoded frames from aborted ones.
type FrameKind string

// Frame kinds.
const (
	// FrameKindData is a frame closed by its end delimiter.
	FrameKindData FrameKind = "frame"
	// FrameKindAborted is a frame abandoned on an illegal escape sequence.
	FrameKindAborted FrameKind = "aborted"
)

// IsDroppable reports whether a delivery policy may drop frames of this kind
// under buffer pressure. Only aborted frames are droppable.
func (k FrameKind) IsDroppable() bool {
	return k == FrameKindAborted
}

// StreamMeta identifies one decoded byte stream.
type StreamMeta struct {
	// Stream is the operator-chosen stream name (e.g. "tnc0").
	Stream string
	// Transport is the transport type: serial, can or file.
	Transport string
	// Device is the transport address (serial path, CAN interface list, file path).
	Device string
}

// FrameEvent is the downstream record of one decoded or aborted frame.
// Field tags cover both JSON and msgpack encodings used by the adapters.
type FrameEvent struct {
	// SchemaVersion is the FrameEvent schema version.
	SchemaVersion string `json:"schema_version" msgpack:"schema_version"`
	// Stream is the name of the stream the frame was decoded from.
	Stream string `json:"stream" msgpack:"stream"`
	// Seq is the monotonic frame sequence number within the stream, starting at 1.
	Seq int64 `json:"seq" msgpack:"seq"`
	// Kind is the frame kind.
	Kind FrameKind `json:"kind" msgpack:"kind"`
	// Port is the KISS port number (high nibble of the type byte).
	Port uint8 `json:"port" msgpack:"port"`
	// Command is the KISS command (low nibble of the type byte).
	Command uint8 `json:"command" msgpack:"command"`
	// Payload is the de-escaped frame payload, including the type byte.
	// For aborted frames this is the payload collected before the abort.
	Payload []byte `json:"payload" msgpack:"payload"`
	// Offending is the byte that caused the abort (aborted frames only).
	Offending *uint8 `json:"offending,omitempty" msgpack:"offending,omitempty"`
	// Ts is the decode timestamp in RFC 3339 UTC format.
	Ts string `json:"ts" msgpack:"ts"`
}

// FormatTimestamp formats t the way FrameEvent.Ts expects.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Size returns the approximate in-memory size of the event in bytes, used
// for buffer accounting.
func (e *FrameEvent) Size() int64 {
	return int64(len(e.Payload) + len(e.Stream) + len(e.Ts) + len(e.SchemaVersion) + 32)
}
