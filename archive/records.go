package archive

import (
	"encoding/hex"
	"time"

	"github.com/pithecene-io/framewire/types"
)

// RecordKindFrame is the record_kind discriminator of frame records.
const RecordKindFrame = "frame"

// DeriveDay returns the day partition (YYYY-MM-DD, UTC) of a frame
// timestamp. Unparseable timestamps fall back to now.
func DeriveDay(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t = timeNow()
	}
	return t.UTC().Format("2006-01-02")
}

var timeNow = time.Now

// toFrameRecordMap converts a frame to the map form the Hive layout reads
// partition keys from. Payloads are stored as lowercase hex.
func toFrameRecordMap(f *types.FrameEvent, stream string) map[string]any {
	if stream == "" {
		stream = f.Stream
	}
	m := map[string]any{
		"record_kind":    RecordKindFrame,
		"schema_version": f.SchemaVersion,
		"stream":         stream,
		"seq":            f.Seq,
		"kind":           string(f.Kind),
		"port":           int(f.Port),
		"command":        int(f.Command),
		"payload":        hex.EncodeToString(f.Payload),
		"ts":             f.Ts,
		"day":            DeriveDay(f.Ts),
	}
	if f.Offending != nil {
		m["offending"] = int(*f.Offending)
	}
	return m
}

// fromFrameRecordMap rebuilds a frame from a stored record. ok is false for
// records that are not frame records.
func fromFrameRecordMap(m map[string]any) (*types.FrameEvent, bool) {
	if m["record_kind"] != RecordKindFrame {
		return nil, false
	}
	payload, err := hex.DecodeString(toString(m["payload"]))
	if err != nil {
		return nil, false
	}
	f := &types.FrameEvent{
		SchemaVersion: toString(m["schema_version"]),
		Stream:        toString(m["stream"]),
		Seq:           toInt64(m["seq"]),
		Kind:          types.FrameKind(toString(m["kind"])),
		Port:          uint8(toInt64(m["port"])),
		Command:       uint8(toInt64(m["command"])),
		Payload:       payload,
		Ts:            toString(m["ts"]),
	}
	if v, ok := m["offending"]; ok && v != nil {
		b := uint8(toInt64(v))
		f.Offending = &b
	}
	return f, true
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a JSON decode or an in-memory store
// may hand back.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case uint8:
		return int64(n)
	default:
		return 0
	}
}
