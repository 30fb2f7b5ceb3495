package ir

// Run identifies one recorded simulation of a design.
type Run struct {
	ID               string `json:"id"`
	DesignName       string `json:"design_name"`
	DesignHash       string `json:"design_hash"`
	SchedulerVersion string `json:"scheduler_version"`
	Cycles           int64  `json:"cycles"`
	Finished         bool   `json:"finished"`
}

// CycleRecord is the observable outcome of one clock cycle.
//
// Ready is the arbiter input (effective readiness after method
// preconditions); Fired is the firing set in canonical order. Both hold
// transaction names.
type CycleRecord struct {
	Cycle int64        `json:"cycle"`
	Ready []string     `json:"ready"`
	Fired []string     `json:"fired"`
	Calls []MethodCall `json:"calls,omitempty"`
}

// MethodCall records one multiplexed method invocation: which transaction
// owned the method this cycle and the data that crossed the mux.
type MethodCall struct {
	Method string `json:"method"`
	Caller string `json:"caller"`
	Args   Record `json:"args"`
	Result Record `json:"result"`
}
