package ir

// Version constants for the design schema and scheduler.
const (
	// IRVersion is the design schema version.
	IRVersion = "1"

	// SchedulerVersion is the scheduler core version.
	SchedulerVersion = "0.1.0"
)
