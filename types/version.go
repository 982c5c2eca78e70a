package types

// Version is the canonical project version.
// The CLI, the frame event schema and the published payloads share this
// version.
const Version = "0.3.0"

// SchemaVersion is the version of the FrameEvent schema carried in every
// published event. It moves in lockstep with Version.
const SchemaVersion = Version
