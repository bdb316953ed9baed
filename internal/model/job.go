package model

import "time"

// JobState is the lifecycle state of an asynchronous job.
type JobState string

// Job state constants. The literal values are part of the public API.
const (
	StatePending  JobState = "PENDING"
	StateStarted  JobState = "STARTED"
	StateProgress JobState = "PROGRESS"
	StateSuccess  JobState = "SUCCESS"
	StateFailure  JobState = "FAILURE"
)

// validTransitions maps each state to the set of states it may transition to.
// SUCCESS and FAILURE have no entry: they are absorbing.
var validTransitions = map[JobState]map[JobState]bool{
	StatePending: {
		StateStarted: true,
		StateFailure: true,
	},
	StateStarted: {
		StateProgress: true,
		StateSuccess:  true,
		StateFailure:  true,
	},
	StateProgress: {
		StateProgress: true,
		StateSuccess:  true,
		StateFailure:  true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to JobState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether s is SUCCESS or FAILURE.
func (s JobState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Running reports whether progress may be attached to a job in state s.
func (s JobState) Running() bool {
	return s == StateStarted || s == StateProgress
}

// Progress is a point-in-time progress report for a running job.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// NewProgress builds a progress report. Percent is floor(100*current/total),
// 0 when total is 0, and always within [0, 100].
func NewProgress(current, total int, message string) Progress {
	if current < 0 {
		current = 0
	}
	if total < 0 {
		total = 0
	}
	percent := 0
	if total > 0 {
		percent = int(int64(current) * 100 / int64(total))
	}
	percent = min(max(percent, 0), 100)
	return Progress{
		Current: current,
		Total:   total,
		Percent: percent,
		Message: message,
	}
}

// JobSpec describes a training job. Backend is a registered backend id or
// TrainAll.
type JobSpec struct {
	Backend string      `json:"backend"`
	Params  TrainParams `json:"params"`
}

// JobResult is the payload stored when a job succeeds. Metrics is set for a
// single-backend job, Results for a TrainAll job.
type JobResult struct {
	Backend string                  `json:"backend"`
	Message string                  `json:"message"`
	Metrics *TrainMetrics           `json:"metrics,omitempty"`
	Results map[string]TrainMetrics `json:"results,omitempty"`
}

// JobError is the failure captured into a job record.
type JobError struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// JobStatus is an immutable snapshot of a job. A new value is written for
// every transition; readers never see a partially updated record.
type JobStatus struct {
	ID          string     `json:"job_id"`
	State       JobState   `json:"state"`
	Spec        JobSpec    `json:"spec"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the snapshot's retention window has elapsed at now.
func (s *JobStatus) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// TrainingRun is the history record written when a job finishes.
type TrainingRun struct {
	JobID       string    `json:"job_id"`
	Backend     string    `json:"backend"`
	State       JobState  `json:"state"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int       `json:"duration_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
