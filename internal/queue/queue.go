package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/observability"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// Queue is the entry point for assignment triggers and status polling.
type Queue struct {
	store   JobStore
	logger  *zap.Logger
	metrics *observability.Metrics
	wake    chan struct{}
	lease   time.Duration
	now     func() time.Time
}

// DefaultLease is how long an active job may go without a heartbeat before
// another worker takes it over.
const DefaultLease = time.Minute

// Option customizes a Queue.
type Option func(*Queue)

// WithLease sets the heartbeat lease of active jobs.
func WithLease(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// New builds a queue over store.
func New(store JobStore, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		store:   store,
		logger:  logger,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
		lease:   DefaultLease,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue records a request to place the member. A member with a waiting or
// active job gets that job back instead of a new one.
func (q *Queue) Enqueue(ctx context.Context, memberID string) (Job, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Job{}, apperrors.NewValidationError("member_id is required", nil)
	}
	job, created, err := q.store.Create(ctx, Job{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		State:     JobWaiting,
		CreatedAt: q.now(),
	})
	if err != nil {
		return Job{}, err
	}
	q.metrics.RecordEnqueue(!created)
	if created {
		q.logger.Debug("job enqueued", zap.String("job_id", job.ID), zap.String("member_id", memberID))
		q.Notify()
	}
	return job, nil
}

// Status returns the current state of a job without blocking.
func (q *Queue) Status(ctx context.Context, jobID string) (Job, error) {
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return Job{}, apperrors.NewNotFound("job", map[string]any{"job_id": jobID})
		}
		return Job{}, err
	}
	return job, nil
}

// Counts reports jobs per state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx)
}

// Wake is signalled whenever a new job is enqueued.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Claim hands the caller an active job whose worker stopped heartbeating, or
// else the oldest waiting job.
func (q *Queue) Claim(ctx context.Context) (Job, bool, error) {
	now := q.now()
	job, ok, err := q.store.Claim(ctx, now, now.Add(-q.lease))
	if err != nil || !ok {
		return job, ok, err
	}
	if job.Reclaims > 0 {
		q.metrics.RecordReclaim()
		q.logger.Warn("reclaimed stale job",
			zap.String("job_id", job.ID),
			zap.String("member_id", job.MemberID),
			zap.Int("attempts", job.Attempts),
			zap.Int("reclaims", job.Reclaims))
	}
	return job, true, nil
}

// RecordAttempt publishes the attempt counter of an active job and renews
// its lease.
func (q *Queue) RecordAttempt(ctx context.Context, job *Job, attempt int) error {
	job.Attempts = attempt
	return q.store.SetAttempts(ctx, job.ID, attempt, q.now())
}

// Complete marks the job completed with its assignment.
func (q *Queue) Complete(ctx context.Context, job Job, assignment *domain.Assignment) error {
	finished := q.now()
	job.State = JobCompleted
	job.Result = assignment
	job.Failure = nil
	job.FinishedAt = &finished
	if err := q.store.Finish(ctx, job); err != nil {
		return err
	}
	q.metrics.RecordJobFinished(string(JobCompleted), "", job.Attempts)
	return nil
}

// Fail marks the job failed with the error's kind and message.
func (q *Queue) Fail(ctx context.Context, job Job, cause error) error {
	finished := q.now()
	job.State = JobFailed
	job.Result = nil
	job.Failure = FailureFrom(cause)
	job.FinishedAt = &finished
	if err := q.store.Finish(ctx, job); err != nil {
		return err
	}
	q.metrics.RecordJobFinished(string(JobFailed), job.Failure.Kind, job.Attempts)
	return nil
}

// Prune removes terminal jobs older than retention.
func (q *Queue) Prune(ctx context.Context, retention time.Duration) (int, error) {
	n, err := q.store.Prune(ctx, q.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	q.metrics.RecordPruned(n)
	return n, nil
}

// FailureFrom converts an error to the job failure payload.
func FailureFrom(err error) *JobFailure {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &JobFailure{Kind: "interrupted", Message: err.Error()}
	}
	de := apperrors.ToDomainError(err)
	msg := de.Message
	if de.Code == apperrors.CodeInternal && de.Err != nil {
		msg = de.Err.Error()
	}
	return &JobFailure{Kind: de.Kind(), Message: msg}
}

// Notify wakes one idle worker, if any is waiting.
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
