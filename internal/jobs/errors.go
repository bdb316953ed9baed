package jobs

import (
	"errors"
	"fmt"

	"github.com/seantiz/modelrouter/internal/model"
)

var (
	// ErrJobNotFound is returned for ids that were never submitted or whose
	// terminal record has expired.
	ErrJobNotFound = errors.New("job not found")

	// ErrThrottled is returned by Submit when admission control rejects a job.
	ErrThrottled = errors.New("job submission throttled")
)

// NotReadyError is returned by Result for a job that has not succeeded.
type NotReadyError struct {
	ID    string
	State model.JobState
	// Failure is set when the job failed.
	Failure *model.JobError
}

func (e *NotReadyError) Error() string {
	if e.Failure != nil {
		return fmt.Sprintf("job %s is %s: %s", e.ID, e.State, e.Failure.Message)
	}
	return fmt.Sprintf("job %s is %s", e.ID, e.State)
}
