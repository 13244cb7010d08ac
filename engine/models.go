package engine

import "time"

// RunStatus represents the current state of a job run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal returns true if the status is a final state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// String returns the string representation
func (s RunStatus) String() string {
	return string(s)
}

// StepStatus represents the current state of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// String returns the string representation
func (s StepStatus) String() string {
	return string(s)
}

// RunReport is the outcome of one job run
type RunReport struct {
	RunID       string        `json:"run_id"`
	JobID       string        `json:"job_id"`
	PipelineID  string        `json:"pipeline_id"`
	Status      RunStatus     `json:"status"`
	Progress    float64       `json:"progress"`
	Steps       []*StepReport `json:"steps"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// StepReport is the outcome of one step
type StepReport struct {
	StepID      string     `json:"step_id"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	DurationMs  int64      `json:"duration_ms"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step returns the report of a step, nil when the job has no such step
func (r *RunReport) Step(id string) *StepReport {
	for _, s := range r.Steps {
		if s.StepID == id {
			return s
		}
	}
	return nil
}

// Duration returns how long the run took, zero while it is still running
func (r *RunReport) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
