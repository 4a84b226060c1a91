package harness

// TraceEvent is one dispatched mutation.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Action string `json:"action"`
	State  State  `json:"state"`
}

// Outcome is what the watch reported.
type Outcome struct {
	// Resolved is true when the watch ended on its own, without the
	// harness cancelling it after the last step.
	Resolved bool `json:"resolved"`

	// State is the satisfying snapshot (observe kinds) or the snapshot the
	// violation set was computed from (run_while).
	State State `json:"state,omitempty"`

	Reactions  int      `json:"reactions"`
	Args       []any    `json:"args,omitempty"`
	Violated   bool     `json:"violated"`
	Violations []string `json:"violations,omitempty"`

	// Error is the session error, if it failed for a reason other than the
	// harness cancelling it.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every expect check holds.
	Pass bool `json:"pass"`

	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	SessionID string `json:"session_id"`

	// Trace contains every dispatched mutation in seq order.
	Trace []TraceEvent `json:"trace"`

	Outcome Outcome `json:"outcome"`

	// Final is the store state after the last step.
	Final State `json:"final"`

	// Errors contains failed expect checks.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace records a dispatched mutation.
func (r *Result) AddTrace(seq int64, action string, state State) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Action: action, State: state})
}
