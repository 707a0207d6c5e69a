package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/cohort"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
	"github.com/spec-kit/squad-service/internal/queue"
	"github.com/spec-kit/squad-service/internal/repository"
	"github.com/spec-kit/squad-service/internal/service"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// scriptedAssigner returns the scripted errors in order, then succeeds.
// With commitFirst set, the first call stores that assignment as committed
// before failing, like a commit whose acknowledgement was lost.
type scriptedAssigner struct {
	mu          sync.Mutex
	script      []error
	calls       int
	existing    *domain.Assignment
	commitFirst *domain.Assignment
	block       bool
}

func (s *scriptedAssigner) Assign(ctx context.Context, memberID string) (*domain.Assignment, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	block := s.block
	if call == 0 && s.commitFirst != nil {
		committed := *s.commitFirst
		committed.CreatedAt = time.Now()
		s.existing = &committed
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("begin tx: %w", ctx.Err())
	}
	if call < len(s.script) && s.script[call] != nil {
		return nil, s.script[call]
	}
	return &domain.Assignment{ID: "a-" + memberID, MemberID: memberID, SquadID: "s1", JerseyNumber: 1}, nil
}

func (s *scriptedAssigner) AssignmentForMember(context.Context, string) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existing == nil {
		return nil, apperrors.NewNotFound("assignment", nil)
	}
	return s.existing, nil
}

func (s *scriptedAssigner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig(maxAttempts int) PoolConfig {
	return PoolConfig{
		Workers:        2,
		MaxAttempts:    maxAttempts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}
}

func startPool(t *testing.T, q *queue.Queue, a Assigner, cfg PoolConfig) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewAssignmentPool(q, a, cfg, nil).Run(ctx) }()
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			stop()
			require.NoError(t, <-done)
		})
	}
	t.Cleanup(cancel)
	return cancel
}

func waitTerminal(t *testing.T, q *queue.Queue, jobID string) queue.Job {
	t.Helper()
	var job queue.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.Status(context.Background(), jobID)
		return err == nil && job.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestPoolOutcomes(t *testing.T) {
	conflict := apperrors.NewAssignmentConflict("lost race", nil)

	cases := []struct {
		name         string
		assigner     *scriptedAssigner
		maxAttempts  int
		wantState    queue.JobState
		wantKind     string
		wantAttempts int
	}{
		{name: "first attempt succeeds", assigner: &scriptedAssigner{}, maxAttempts: 3, wantState: queue.JobCompleted, wantAttempts: 1},
		{name: "conflicts are retried", assigner: &scriptedAssigner{script: []error{conflict, conflict}}, maxAttempts: 3, wantState: queue.JobCompleted, wantAttempts: 3},
		{name: "retries run out", assigner: &scriptedAssigner{script: []error{conflict, conflict, conflict}}, maxAttempts: 3, wantState: queue.JobFailed, wantKind: "assignment_conflict", wantAttempts: 3},
		{name: "capacity is not retried", assigner: &scriptedAssigner{script: []error{apperrors.NewCapacityExhausted("full", nil)}}, maxAttempts: 3, wantState: queue.JobFailed, wantKind: "capacity_exhausted", wantAttempts: 1},
		{name: "infrastructure errors are retried", assigner: &scriptedAssigner{script: []error{fmt.Errorf("dial tcp: refused")}}, maxAttempts: 3, wantState: queue.JobCompleted, wantAttempts: 2},
		{name: "ineligible on first attempt fails", assigner: &scriptedAssigner{script: []error{apperrors.NewMemberNotEligible("member already assigned", nil)}, existing: &domain.Assignment{ID: "old"}}, maxAttempts: 3, wantState: queue.JobFailed, wantKind: "member_not_eligible", wantAttempts: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := queue.New(queue.NewMemoryStore(), nil, nil)
			startPool(t, q, tc.assigner, fastConfig(tc.maxAttempts))

			job, err := q.Enqueue(context.Background(), "m1")
			require.NoError(t, err)

			got := waitTerminal(t, q, job.ID)
			require.Equal(t, tc.wantState, got.State)
			require.Equal(t, tc.wantAttempts, got.Attempts)
			if tc.wantKind == "" {
				require.NotNil(t, got.Result)
				require.Nil(t, got.Failure)
			} else {
				require.Nil(t, got.Result)
				require.Equal(t, tc.wantKind, got.Failure.Kind)
			}
		})
	}
}

func TestPoolCompletesWithCommittedAssignmentOnRetry(t *testing.T) {
	assigner := &scriptedAssigner{
		script: []error{
			apperrors.NewInternalError(fmt.Errorf("commit: connection reset")),
			apperrors.NewMemberNotEligible("member already assigned", nil),
		},
		commitFirst: &domain.Assignment{ID: "a-committed", MemberID: "m1", SquadID: "s9", JerseyNumber: 7},
	}
	q := queue.New(queue.NewMemoryStore(), nil, nil)
	startPool(t, q, assigner, fastConfig(3))

	job, err := q.Enqueue(context.Background(), "m1")
	require.NoError(t, err)

	got := waitTerminal(t, q, job.ID)
	require.Equal(t, queue.JobCompleted, got.State)
	require.Equal(t, "a-committed", got.Result.ID)
	require.Equal(t, 2, got.Attempts)
}

func TestPoolRetryIgnoresAssignmentThatPredatesJob(t *testing.T) {
	assigner := &scriptedAssigner{
		script: []error{
			fmt.Errorf("dial tcp: connection refused"),
			apperrors.NewMemberNotEligible("member already assigned", nil),
		},
		existing: &domain.Assignment{ID: "a-old", MemberID: "m1", SquadID: "s1", CreatedAt: time.Now().Add(-time.Hour)},
	}
	q := queue.New(queue.NewMemoryStore(), nil, nil)
	startPool(t, q, assigner, fastConfig(3))

	job, err := q.Enqueue(context.Background(), "m1")
	require.NoError(t, err)

	got := waitTerminal(t, q, job.ID)
	require.Equal(t, queue.JobFailed, got.State)
	require.Nil(t, got.Result)
	require.Equal(t, "member_not_eligible", got.Failure.Kind)
	require.Equal(t, 2, got.Attempts)
}

func TestPoolResumesJobAbandonedByDeadWorker(t *testing.T) {
	q := queue.New(queue.NewMemoryStore(), nil, nil, queue.WithLease(20*time.Millisecond))
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)
	abandoned, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.RecordAttempt(ctx, &abandoned, 1))

	// A trigger while the job is stuck still folds into it.
	again, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, job.ID, again.ID)

	cfg := fastConfig(3)
	cfg.Workers = 1
	startPool(t, q, &scriptedAssigner{}, cfg)

	got := waitTerminal(t, q, job.ID)
	require.Equal(t, queue.JobCompleted, got.State)
	require.Equal(t, 1, got.Reclaims)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, abandoned.StartedAt.UnixNano(), got.StartedAt.UnixNano())
}

func TestPoolShutdownInterruptsActiveJob(t *testing.T) {
	assigner := &scriptedAssigner{block: true}
	q := queue.New(queue.NewMemoryStore(), nil, nil)
	cancel := startPool(t, q, assigner, fastConfig(3))

	job, err := q.Enqueue(context.Background(), "m1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return assigner.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	got, err := q.Status(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.JobFailed, got.State)
	require.Equal(t, "interrupted", got.Failure.Kind)
}

func TestPoolDrainsRealAssignments(t *testing.T) {
	store := repository.NewMemoryStore()
	roster, err := policy.ParseRoster("GK:1,DEF:3,MID:2,FWD:2")
	require.NoError(t, err)
	policies, err := policy.New(policy.Policy{MaxOpenSquads: 2, MinFillToOpenNextPercent: 80, Roster: roster}, nil)
	require.NoError(t, err)

	members := service.NewMemberService(store, nil)
	assign := service.NewAssignmentService(service.AssignmentDependencies{
		Store:    store,
		Policies: policies,
		Resolver: cohort.NewResolver(2026, 1),
	})

	ctx := context.Background()
	positions := []string{"gk", "def", "def", "def", "mid", "mid", "fwd", "fwd"}
	year := 2015
	for i, pos := range positions {
		_, err := members.SyncProfile(ctx, fmt.Sprintf("m%d", i), service.MemberProfileInput{
			BirthYear:       &year,
			PrimaryPosition: pos,
			Status:          domain.MemberStatusActive,
		})
		require.NoError(t, err)
	}

	q := queue.New(queue.NewMemoryStore(), nil, nil)
	cfg := fastConfig(5)
	cfg.Workers = 4
	startPool(t, q, assign, cfg)

	jobIDs := make([]string, 0, len(positions))
	for i := range positions {
		job, err := q.Enqueue(ctx, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		jobIDs = append(jobIDs, job.ID)
	}

	jerseys := map[int]bool{}
	for _, id := range jobIDs {
		got := waitTerminal(t, q, id)
		require.Equal(t, queue.JobCompleted, got.State, "%+v", got.Failure)
		require.False(t, jerseys[got.Result.JerseyNumber])
		jerseys[got.Result.JerseyNumber] = true
	}
	require.Len(t, jerseys, len(positions))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, queue.Counts{Completed: len(positions)}, counts)
}

// flakyAssigner fails its first call with a transient error before handing
// over to the real service.
type flakyAssigner struct {
	Assigner
	mu     sync.Mutex
	failed bool
}

func (f *flakyAssigner) Assign(ctx context.Context, memberID string) (*domain.Assignment, error) {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}
	return f.Assigner.Assign(ctx, memberID)
}

func TestPoolRetriggerOfAssignedMemberFails(t *testing.T) {
	store := repository.NewMemoryStore()
	roster, err := policy.ParseRoster("GK:1,DEF:3,MID:2,FWD:2")
	require.NoError(t, err)
	policies, err := policy.New(policy.Policy{MaxOpenSquads: 2, MinFillToOpenNextPercent: 80, Roster: roster}, nil)
	require.NoError(t, err)
	assign := service.NewAssignmentService(service.AssignmentDependencies{
		Store:    store,
		Policies: policies,
		Resolver: cohort.NewResolver(2026, 1),
	})

	ctx := context.Background()
	year := 2015
	_, err = service.NewMemberService(store, nil).SyncProfile(ctx, "m1", service.MemberProfileInput{
		BirthYear:       &year,
		PrimaryPosition: "mid",
		Status:          domain.MemberStatusActive,
	})
	require.NoError(t, err)
	original, err := assign.Assign(ctx, "m1")
	require.NoError(t, err)

	q := queue.New(queue.NewMemoryStore(), nil, nil)
	startPool(t, q, &flakyAssigner{Assigner: assign}, fastConfig(3))

	job, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)

	got := waitTerminal(t, q, job.ID)
	require.Equal(t, queue.JobFailed, got.State)
	require.Equal(t, "member_not_eligible", got.Failure.Kind)
	require.Nil(t, got.Result)

	current, err := assign.AssignmentForMember(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, original.ID, current.ID)
}

func TestJanitorSweep(t *testing.T) {
	q := queue.New(queue.NewMemoryStore(), nil, nil)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)
	claimed, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Complete(ctx, claimed, &domain.Assignment{ID: "a1"}))

	require.Zero(t, NewJanitor(q, time.Hour, time.Minute, nil).Sweep(ctx))
	require.Equal(t, 1, NewJanitor(q, -time.Second, time.Minute, nil).Sweep(ctx))

	_, err = q.Status(ctx, job.ID)
	require.Error(t, err)
}
