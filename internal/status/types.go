package status

import "time"

// TaskPhase represents where a scheduled task is in its request cycle
type TaskPhase string

const (
	// TaskPhaseIdle means no request is outstanding
	TaskPhaseIdle TaskPhase = "Idle"

	// TaskPhaseRunning means the task callback fired and a result is awaited
	TaskPhaseRunning TaskPhase = "Running"

	// TaskPhaseFailed means the last attempt failed and a retry is scheduled
	TaskPhaseFailed TaskPhase = "Failed"
)

// TaskStatus is the persisted state of one scheduled task
type TaskStatus struct {
	// Phase is the task phase at the time the status was saved
	Phase TaskPhase `json:"phase"`

	// LastAttempt is the timestamp of the last request handed to the task
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastSuccess is the timestamp of the last successful attempt
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// ConsecutiveFailures is the number of failed attempts since the last success
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	// HasPendingImmediateRequest survives restarts so an on-demand request
	// made just before shutdown is not lost
	HasPendingImmediateRequest bool `json:"hasPendingImmediateRequest,omitempty"`
}
