package queue

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryStore keeps jobs in process. Reads are lock-free; state transitions
// are serialized so the FIFO and the member index stay consistent.
type MemoryStore struct {
	jobs     *xsync.Map[string, Job]
	byMember *xsync.Map[string, string]

	mu         sync.Mutex
	waiting    []string
	heartbeats map[string]time.Time
}

// NewMemoryStore returns an empty job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       xsync.NewMap[string, Job](),
		byMember:   xsync.NewMap[string, string](),
		heartbeats: map[string]time.Time{},
	}
}

func (s *MemoryStore) Create(_ context.Context, job Job) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byMember.Load(job.MemberID); ok {
		if existing, ok := s.jobs.Load(id); ok && !existing.State.Terminal() {
			return existing, false, nil
		}
	}
	job.State = JobWaiting
	s.jobs.Store(job.ID, job)
	s.byMember.Store(job.MemberID, job.ID)
	s.waiting = append(s.waiting, job.ID)
	return job, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	job, ok := s.jobs.Load(id)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryStore) Claim(_ context.Context, now, staleBefore time.Time) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.oldestStale(staleBefore); ok {
		if job, ok := s.jobs.Load(id); ok && job.State == JobActive {
			job.Reclaims++
			s.jobs.Store(id, job)
			s.heartbeats[id] = now
			return job, true, nil
		}
		delete(s.heartbeats, id)
	}

	for len(s.waiting) > 0 {
		id := s.waiting[0]
		s.waiting = s.waiting[1:]
		job, ok := s.jobs.Load(id)
		if !ok || job.State != JobWaiting {
			continue
		}
		started := now
		job.State = JobActive
		job.StartedAt = &started
		s.jobs.Store(id, job)
		s.heartbeats[id] = now
		return job, true, nil
	}
	return Job{}, false, nil
}

func (s *MemoryStore) oldestStale(staleBefore time.Time) (string, bool) {
	var (
		oldest string
		at     time.Time
	)
	for id, beat := range s.heartbeats {
		if !beat.Before(staleBefore) {
			continue
		}
		if oldest == "" || beat.Before(at) {
			oldest, at = id, beat
		}
	}
	return oldest, oldest != ""
}

func (s *MemoryStore) SetAttempts(_ context.Context, id string, attempts int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs.Load(id)
	if !ok {
		return ErrJobNotFound
	}
	job.Attempts = attempts
	s.jobs.Store(id, job)
	if job.State == JobActive {
		s.heartbeats[id] = now
	}
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs.Load(job.ID); !ok {
		return ErrJobNotFound
	}
	s.jobs.Store(job.ID, job)
	delete(s.heartbeats, job.ID)
	s.byMember.Compute(job.MemberID, func(current string, loaded bool) (string, xsync.ComputeOp) {
		if loaded && current == job.ID {
			return "", xsync.DeleteOp
		}
		return current, xsync.CancelOp
	})
	return nil
}

func (s *MemoryStore) Counts(context.Context) (Counts, error) {
	var c Counts
	s.jobs.Range(func(_ string, job Job) bool {
		c.add(job.State, 1)
		return true
	})
	return c, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	s.jobs.Range(func(id string, job Job) bool {
		if job.State.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(before) {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		s.jobs.Delete(id)
	}
	return len(stale), nil
}
