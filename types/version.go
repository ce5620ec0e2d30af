package types

// Version is the canonical project version.
// The CLI, capture format, and session records share this version.
const Version = "0.3.0"
