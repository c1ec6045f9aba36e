package domain

import "time"

// Trace is the ordered record of one machine run. Given fixed agent
// responses a run always reconstructs the same trace.
type Trace struct {
	RunID      string      `json:"run_id"`
	Machine    string      `json:"machine"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Steps      []StepTrace `json:"steps"`

	// Output is the machine output when the run reached a final state.
	Output map[string]any `json:"output,omitempty"`
	// Err and ErrKind are set when the run failed.
	Err     string `json:"error,omitempty"`
	ErrKind string `json:"error_kind,omitempty"`
}

// StepTrace records one iteration of the run loop.
type StepTrace struct {
	Seq   int    `json:"seq"`
	State string `json:"state"`

	// Input is the resolved agent input (agent states only).
	Input map[string]any `json:"input,omitempty"`
	// Output is the value produced by the execution strategy, after
	// on_state_exit hooks.
	Output any `json:"output,omitempty"`

	// Err and ErrKind record an agent failure, whether or not it was
	// recovered via on_error routing.
	Err     string `json:"error,omitempty"`
	ErrKind string `json:"error_kind,omitempty"`

	// Samples records every draw made by a parallel or voting strategy.
	Samples []SampleRecord `json:"samples,omitempty"`

	// Transition is the state the run moved to, after hook overrides.
	Transition string `json:"transition,omitempty"`
}

// SampleRecord is one agent draw inside a parallel or voting step.
type SampleRecord struct {
	Index int `json:"index"`
	// Answer is the normalized answer the sample contributed to the tally
	// (voting only).
	Answer string `json:"answer,omitempty"`
	Valid  bool   `json:"valid"`
	// RedFlag names the reason an invalid sample was discarded.
	RedFlag string `json:"red_flag,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Result is the discriminated outcome of Machine.Execute. On failure the
// engine returns a non-nil error alongside a Result that still carries the
// trace-so-far; Output is only set on success.
type Result struct {
	Output map[string]any `json:"output,omitempty"`
	Trace  *Trace         `json:"trace"`
}
