package workflow

import (
	"context"
	"time"
)

// RunStatus represents the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusTimedOut  RunStatus = "timed_out"
)

// IsTerminal returns true if the status is terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusTimedOut:
		return true
	}
	return false
}

// WorkflowRun is the persisted record of one workflow execution.
type WorkflowRun struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	WorkflowID  string    `json:"workflow_id" gorm:"uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"not null;index"`
	TaskQueue   string    `json:"task_queue"`
	Input       []byte    `json:"-"`
	Status      RunStatus `json:"status" gorm:"not null;default:running;index"`
	StepIndex   int       `json:"step_index"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// ActivityFunc is a named, idempotent unit of work. It may be invoked more
// than once for the same logical step after a failure, so re-applying it
// with the same input must produce the same end state.
type ActivityFunc func(ctx context.Context, input []byte) error

// Step is one activity call within a workflow definition.
type Step struct {
	Name string
	Run  ActivityFunc
}

// RetryPolicy controls per-activity retries.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffCoefficient float64
}

// Interval returns the backoff interval preceding the given attempt
// (1-based; the first attempt has no backoff).
func (p RetryPolicy) Interval(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	interval := float64(p.InitialInterval)
	for i := 2; i < attempt; i++ {
		interval *= p.BackoffCoefficient
		if p.MaxInterval > 0 && interval >= float64(p.MaxInterval) {
			return p.MaxInterval
		}
	}
	d := time.Duration(interval)
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Definition describes a named workflow: an ordered sequence of idempotent
// activities executed with the given retry and timeout policy. A run awaits
// each activity before proceeding to the next.
type Definition struct {
	Name             string
	TaskQueue        string
	Retry            RetryPolicy
	ActivityTimeout  time.Duration
	ExecutionTimeout time.Duration
	Steps            []Step
}
