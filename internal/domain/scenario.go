package domain

import (
	"path/filepath"
	"time"
)

const (
	// MarkerFile is the run log whose presence marks a run directory as done.
	MarkerFile = "sfincs.log"
	// StatusFile holds the persisted RunStatus of a run directory.
	StatusFile = "sfincs.status.json"
)

// Scenario is one run configuration: a scenario name from the table plus a
// directory suffix variant.
type Scenario struct {
	Name   string `json:"name"`
	Suffix string `json:"suffix,omitempty"`
}

// Dir returns the run directory name of the scenario.
func (s Scenario) Dir() string { return s.Name + s.Suffix }

// Root returns the run directory of the scenario below modelDir.
func (s Scenario) Root(modelDir string) string { return filepath.Join(modelDir, s.Dir()) }

// RunState is the lifecycle state of a scenario run.
type RunState string

const (
	StatePending   RunState = "pending"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
	StateSkipped   RunState = "skipped"
)

// RunStatus is the persisted record of one scenario run.
type RunStatus struct {
	Scenario   Scenario  `json:"scenario"`
	Dir        string    `json:"dir"`
	State      RunState  `json:"state"`
	Executor   string    `json:"executor,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewRunStatus returns a pending status for the scenario rooted at dir.
func NewRunStatus(s Scenario, dir string) RunStatus {
	return RunStatus{Scenario: s, Dir: dir, State: StatePending}
}

// Start marks the run as running.
func (r *RunStatus) Start(executor string) {
	r.State = StateRunning
	r.Executor = executor
	r.StartedAt = now()
}

// Finish records the outcome of the run. A nil err means succeeded.
func (r *RunStatus) Finish(exitCode int, err error) {
	r.ExitCode = exitCode
	r.FinishedAt = now()
	if err != nil {
		r.State = StateFailed
		r.Error = err.Error()
		return
	}
	r.State = StateSucceeded
	r.Error = ""
}

// Duration returns how long the run took, or zero if it has not finished.
func (r RunStatus) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome is the result of one best-effort filesystem step such as deleting a
// transient output or copying a result back from the staging directory.
type Outcome struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Failed returns the failed outcomes of a list.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}
