// Package queue tracks assignment jobs from trigger to terminal outcome.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobFailure describes why a job failed. Kind is the lower-case error code.
type JobFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is one assignment request. Exactly one of Result and Failure is set
// once the job is terminal.
type Job struct {
	ID         string             `json:"id"`
	MemberID   string             `json:"member_id"`
	State      JobState           `json:"state"`
	Attempts   int                `json:"attempts"`
	Reclaims   int                `json:"reclaims,omitempty"`
	Result     *domain.Assignment `json:"result,omitempty"`
	Failure    *JobFailure        `json:"failure,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Counts reports the number of jobs per state.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (c *Counts) add(state JobState, n int) {
	switch state {
	case JobWaiting:
		c.Waiting += n
	case JobActive:
		c.Active += n
	case JobCompleted:
		c.Completed += n
	case JobFailed:
		c.Failed += n
	}
}

// ErrJobNotFound is returned for unknown or pruned job ids.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists jobs. Implementations must make Create atomic with
// respect to the per-member coalescing rule and hand each waiting job to
// exactly one Claim call.
type JobStore interface {
	// Create stores job as waiting unless the member already has a waiting
	// or active job, in which case that job is returned with created=false.
	Create(ctx context.Context, job Job) (existing Job, created bool, err error)
	Get(ctx context.Context, id string) (Job, error)
	// Claim hands out an active job whose heartbeat is older than
	// staleBefore, oldest first, with Reclaims incremented and StartedAt
	// kept. Otherwise it moves the oldest waiting job to active. Either way
	// the job's heartbeat is set to now.
	Claim(ctx context.Context, now, staleBefore time.Time) (Job, bool, error)
	// SetAttempts records the attempt counter and refreshes the heartbeat.
	SetAttempts(ctx context.Context, id string, attempts int, now time.Time) error
	// Finish records a terminal job and releases the member for new jobs.
	Finish(ctx context.Context, job Job) error
	Counts(ctx context.Context) (Counts, error)
	// Prune deletes terminal jobs that finished before the cutoff.
	Prune(ctx context.Context, before time.Time) (int, error)
}
