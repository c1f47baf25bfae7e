package ir

// Version constants for IR schema and engine.
const (
	// IRVersion is the chart declaration IR schema version.
	IRVersion = "1"

	// EngineVersion is the chartflow engine version.
	EngineVersion = "0.1.0"
)
