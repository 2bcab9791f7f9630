package ir

// Version constants for compiled definitions and the engine.
const (
	// IRVersion is the compiled definition schema version.
	IRVersion = "1"

	// EngineVersion is the treestore engine version.
	EngineVersion = "0.1.0"
)
