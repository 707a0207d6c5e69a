// Package worker runs the background loops of the service: the assignment
// worker pool, the job retention janitor and notification fan-out.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/queue"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// Assigner performs the placement for a claimed job.
type Assigner interface {
	Assign(ctx context.Context, memberID string) (*domain.Assignment, error)
	AssignmentForMember(ctx context.Context, memberID string) (*domain.Assignment, error)
}

// PoolConfig tunes the assignment worker pool.
type PoolConfig struct {
	Workers        int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	PollInterval   time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 200 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// AssignmentPool drains the job queue with a fixed number of workers.
type AssignmentPool struct {
	queue    *queue.Queue
	assigner Assigner
	cfg      PoolConfig
	logger   *zap.Logger
}

// NewAssignmentPool builds a pool; call Run to start it.
func NewAssignmentPool(q *queue.Queue, assigner Assigner, cfg PoolConfig, logger *zap.Logger) *AssignmentPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentPool{
		queue:    q,
		assigner: assigner,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled and every worker has returned. A job in
// flight at shutdown is failed as interrupted.
func (p *AssignmentPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			return p.loop(ctx, id)
		})
	}
	p.logger.Info("assignment workers started", zap.Int("workers", p.cfg.Workers))
	err := g.Wait()
	p.logger.Info("assignment workers stopped")
	return err
}

func (p *AssignmentPool) loop(ctx context.Context, id int) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	log := p.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, ok, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("claim job failed", zap.Error(err))
		}
		if ok {
			// More jobs may be waiting; let an idle worker look too.
			p.queue.Notify()
			p.process(ctx, log, job)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-p.queue.Wake():
		case <-ticker.C:
		}
	}
}

// process runs the job to a terminal state. Retryable failures are retried
// in place so the job never leaves the active state between attempts.
func (p *AssignmentPool) process(ctx context.Context, log *zap.Logger, job queue.Job) {
	log = log.With(zap.String("job_id", job.ID), zap.String("member_id", job.MemberID))
	// Terminal bookkeeping must land even when shutdown cancelled ctx.
	persistCtx := context.WithoutCancel(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffInitial
	b.MaxInterval = p.cfg.BackoffMax
	b.Reset()

	// A reclaimed job continues counting from where its previous worker
	// stopped.
	first := job.Attempts + 1
	last := job.Attempts + p.cfg.MaxAttempts

	var lastErr error
	for attempt := first; attempt <= last; attempt++ {
		if err := p.queue.RecordAttempt(persistCtx, &job, attempt); err != nil {
			log.Warn("record attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		assignment, err := p.assigner.Assign(ctx, job.MemberID)
		if err == nil {
			p.complete(persistCtx, log, job, assignment)
			return
		}
		if attempt > 1 && errors.Is(err, apperrors.ErrMemberNotEligible) {
			if committed := p.committedByJob(ctx, job); committed != nil {
				p.complete(persistCtx, log, job, committed)
				return
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			if apperrors.Retryable(err) {
				lastErr = ctx.Err()
			}
			break
		}
		if !apperrors.Retryable(err) || attempt == last {
			break
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		log.Debug("assignment attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := p.queue.Fail(persistCtx, job, lastErr); err != nil {
		log.Error("record job failure failed", zap.Error(err))
		return
	}
	log.Info("assignment job failed",
		zap.Int("attempts", job.Attempts),
		zap.Error(lastErr))
}

// committedByJob returns the member's assignment when an earlier attempt of
// this job committed it before its result was lost. An assignment older than
// the job's first claim predates the job and is not its result.
func (p *AssignmentPool) committedByJob(ctx context.Context, job queue.Job) *domain.Assignment {
	if job.StartedAt == nil {
		return nil
	}
	existing, err := p.assigner.AssignmentForMember(ctx, job.MemberID)
	if err != nil || existing.CreatedAt.Before(*job.StartedAt) {
		return nil
	}
	return existing
}

func (p *AssignmentPool) complete(ctx context.Context, log *zap.Logger, job queue.Job, assignment *domain.Assignment) {
	if err := p.queue.Complete(ctx, job, assignment); err != nil {
		log.Error("record job completion failed", zap.Error(err))
		return
	}
	log.Info("assignment job completed",
		zap.String("squad_id", assignment.SquadID),
		zap.Int("jersey_number", assignment.JerseyNumber),
		zap.Int("attempts", job.Attempts))
}
