package ir

// Version constants for the row hash encoding and engine.
const (
	// HashVersion is bumped whenever the canonical row encoding changes.
	// Changing it invalidates every stored dwh_hash.
	HashVersion = "1"

	// EngineVersion is the pitwall engine version.
	EngineVersion = "0.1.0"
)
