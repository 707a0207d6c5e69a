package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/domain"
)

// exerciseJobStore checks the JobStore contract shared by every backend.
func exerciseJobStore(t *testing.T, store JobStore) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	newJob := func(member string) Job {
		return Job{ID: uuid.NewString(), MemberID: member, CreatedAt: base}
	}

	t.Run("create coalesces live jobs per member", func(t *testing.T) {
		first, created, err := store.Create(ctx, newJob("m1"))
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, JobWaiting, first.State)

		again, created, err := store.Create(ctx, newJob("m1"))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, again.ID)

		other, created, err := store.Create(ctx, newJob("m2"))
		require.NoError(t, err)
		require.True(t, created)
		require.NotEqual(t, first.ID, other.ID)

		counts, err := store.Counts(ctx)
		require.NoError(t, err)
		require.Equal(t, Counts{Waiting: 2}, counts)
	})

	t.Run("claim is FIFO and activates", func(t *testing.T) {
		job, ok, err := store.Claim(ctx, base.Add(time.Second), time.Time{})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "m1", job.MemberID)
		require.Equal(t, JobActive, job.State)
		require.NotNil(t, job.StartedAt)

		// Still coalesced while active.
		again, created, err := store.Create(ctx, newJob("m1"))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, job.ID, again.ID)

		require.NoError(t, store.SetAttempts(ctx, job.ID, 2, base.Add(time.Second)))
		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, 2, got.Attempts)

		finished := base.Add(2 * time.Second)
		got.State = JobCompleted
		got.FinishedAt = &finished
		got.Result = &domain.Assignment{ID: "a1", MemberID: "m1", JerseyNumber: 4}
		require.NoError(t, store.Finish(ctx, got))

		stored, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, JobCompleted, stored.State)
		require.Equal(t, 4, stored.Result.JerseyNumber)

		// A finished job no longer absorbs new triggers.
		fresh, created, err := store.Create(ctx, newJob("m1"))
		require.NoError(t, err)
		require.True(t, created)
		require.NotEqual(t, job.ID, fresh.ID)

		counts, err := store.Counts(ctx)
		require.NoError(t, err)
		require.Equal(t, Counts{Waiting: 2, Completed: 1}, counts)
	})

	t.Run("prune removes old terminal jobs only", func(t *testing.T) {
		n, err := store.Prune(ctx, base.Add(time.Second))
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = store.Prune(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		counts, err := store.Counts(ctx)
		require.NoError(t, err)
		require.Equal(t, Counts{Waiting: 2}, counts)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.True(t, errors.Is(err, ErrJobNotFound))
	})
}

// exerciseReclaim checks that an active job whose worker stopped
// heartbeating is handed out again. restart returns the store a new process
// would see.
func exerciseReclaim(t *testing.T, store JobStore, restart func() JobStore) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	created, _, err := store.Create(ctx, Job{ID: uuid.NewString(), MemberID: "m1", CreatedAt: base})
	require.NoError(t, err)
	claimed, ok, err := store.Claim(ctx, base.Add(time.Second), base)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, claimed.ID)
	require.NoError(t, store.SetAttempts(ctx, claimed.ID, 1, base.Add(2*time.Second)))

	store = restart()

	// The heartbeat is still within the lease.
	_, ok, err = store.Claim(ctx, base.Add(3*time.Second), base.Add(time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	reclaimed, ok, err := store.Claim(ctx, base.Add(time.Minute), base.Add(30*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, claimed.ID, reclaimed.ID)
	require.Equal(t, JobActive, reclaimed.State)
	require.Equal(t, 1, reclaimed.Attempts)
	require.Equal(t, 1, reclaimed.Reclaims)
	require.True(t, claimed.StartedAt.Equal(*reclaimed.StartedAt))

	// The new claim renewed the lease.
	_, ok, err = store.Claim(ctx, base.Add(time.Minute+time.Second), base.Add(30*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, Counts{Active: 1}, counts)

	finished := base.Add(2 * time.Minute)
	reclaimed.State = JobFailed
	reclaimed.FinishedAt = &finished
	reclaimed.Failure = &JobFailure{Kind: "internal_error", Message: "boom"}
	require.NoError(t, store.Finish(ctx, reclaimed))

	// A finished job is never reclaimed and releases the member.
	_, ok, err = store.Claim(ctx, base.Add(time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok)
	fresh, isNew, err := store.Create(ctx, Job{ID: uuid.NewString(), MemberID: "m1", CreatedAt: finished})
	require.NoError(t, err)
	require.True(t, isNew)
	require.NotEqual(t, claimed.ID, fresh.ID)
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseJobStore(t, NewMemoryStore())
}

func TestMemoryStoreReclaimsStaleJobs(t *testing.T) {
	store := NewMemoryStore()
	exerciseReclaim(t, store, func() JobStore { return store })
}

func TestRedisStoreContract(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseJobStore(t, NewRedisStore(client, "squadtest:"+uuid.NewString()))

	t.Run("reclaim after restart", func(t *testing.T) {
		prefix := "squadtest:" + uuid.NewString()
		exerciseReclaim(t, NewRedisStore(client, prefix), func() JobStore {
			return NewRedisStore(client, prefix)
		})
	})
}

func TestMemoryStoreConcurrentClaimsAreExclusive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const jobs = 50
	for i := 0; i < jobs; i++ {
		_, _, err := store.Create(ctx, Job{ID: uuid.NewString(), MemberID: uuid.NewString()})
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[string]int{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok, err := store.Claim(ctx, time.Now(), time.Time{})
				if err != nil || !ok {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, jobs)
	for id, n := range claimed {
		require.Equal(t, 1, n, id)
	}
}
