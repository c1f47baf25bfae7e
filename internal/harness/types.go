package harness

import "github.com/roach88/chartflow/internal/scene"

// TraceEvent records one scenario step: the pass it ran, or its rejection.
type TraceEvent struct {
	Step       int            `json:"step"`
	Action     string         `json:"action"`
	Target     string         `json:"target"`
	Seq        int64          `json:"seq,omitempty"`
	PassID     string         `json:"pass_id,omitempty"`
	Recomputed []string       `json:"recomputed,omitempty"`
	Rows       map[string]int `json:"rows,omitempty"`
	Rejected   bool           `json:"rejected,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Scene is the final scene after every step.
	Scene *scene.Scene `json:"-"`

	// Replayed is the number of recorded passes re-verified from the store.
	Replayed int `json:"replayed"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step's event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
