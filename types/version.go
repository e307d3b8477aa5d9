package types

// Version is the canonical project version.
// The CLI, the frame encoding and the metrics record layout share it.
const Version = "0.3.0"
