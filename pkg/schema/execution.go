package schema

import "time"

// ExecutionStatus represents the lifecycle state of an action execution.
type ExecutionStatus string

const (
	StatusRequested ExecutionStatus = "requested"
	StatusScheduled ExecutionStatus = "scheduled"
	StatusRunning   ExecutionStatus = "running"
	StatusSucceeded ExecutionStatus = "succeeded"
	StatusFailed    ExecutionStatus = "failed"
	StatusTimeout   ExecutionStatus = "timeout"
	StatusCanceled  ExecutionStatus = "canceled"
	StatusAbandoned ExecutionStatus = "abandoned"
)

// IsTerminal reports whether the status is a final state. Only terminal
// executions are accepted for post-processing and only terminal executions
// are eligible for retention purges.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimeout, StatusCanceled, StatusAbandoned:
		return true
	}
	return false
}

// Known reports whether s is one of the recognized status values.
func (s ExecutionStatus) Known() bool {
	switch s {
	case StatusRequested, StatusScheduled, StatusRunning,
		StatusSucceeded, StatusFailed, StatusTimeout, StatusCanceled, StatusAbandoned:
		return true
	}
	return false
}

// ActionExecution is a completed action run together with the contracts
// needed to post-process its result: the action's output schema and the
// runner's envelope layout. Redaction reads Action.OutputSchema and
// Runner.OutputKey; validation additionally reads Runner.OutputSchema.
type ActionExecution struct {
	ID        string          `json:"id"`
	ActionRef string          `json:"action_ref"`
	Action    ActionSpec      `json:"action"`
	Runner    RunnerSpec      `json:"runner"`
	Status    ExecutionStatus `json:"status"`
	Result    any             `json:"result,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}
