package harness

import "github.com/roach88/modeseq/internal/trace"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Table is the name of the table the scenario ran against.
	Table string `json:"table"`

	// RunID is the fixed run id the ticks were stamped with.
	RunID string `json:"run_id"`

	// Trace contains every evaluated tick in order.
	Trace []trace.Tick `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalState is the state after the last tick.
	FinalState string `json:"final_state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []trace.Tick{},
		Errors:     []string{},
		FinalState: trace.NoState,
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTick appends a tick to the trace and tracks the final state.
func (r *Result) AddTick(tk trace.Tick) {
	r.Trace = append(r.Trace, tk)
	r.FinalState = tk.State
}

// Transitions returns the names of the transitions that fired, in order.
func (r *Result) Transitions() []string {
	var names []string
	for _, tk := range r.Trace {
		if tk.Transition != "" {
			names = append(names, tk.Transition)
		}
	}
	return names
}
