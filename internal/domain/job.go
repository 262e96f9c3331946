package domain

import "time"

// Job state constants
const (
	JobStateQueued   = "queued"
	JobStateStarted  = "started"
	JobStateRetrying = "retrying"
	JobStateSuccess  = "success"
	JobStateFailure  = "failure"
)

// ActiveJobStates are the states in which a job occupies the per-dataset
// active slot guarded by the partial unique index.
var ActiveJobStates = []string{JobStateQueued, JobStateStarted, JobStateRetrying}

// IsTerminalJobState reports whether a job state never mutates again.
func IsTerminalJobState(state string) bool {
	return state == JobStateSuccess || state == JobStateFailure
}

// Job represents a single processing attempt against one dataset
type Job struct {
	ID         string     `db:"id"`
	DatasetID  string     `db:"dataset_id"`
	TaskID     *string    `db:"task_id"`
	State      string     `db:"state"`
	Progress   int        `db:"progress"`
	QueuedAt   time.Time  `db:"queued_at"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      *string    `db:"error"`
}

// JobMessage is the transient broker message that triggers processing.
type JobMessage struct {
	DatasetID string `json:"dataset_id"`
	JobID     string `json:"job_id"`

	DeliveryTag uint64 `json:"-"`
}
