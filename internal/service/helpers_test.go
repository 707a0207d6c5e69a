package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/cohort"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/events"
	"github.com/spec-kit/squad-service/internal/policy"
	"github.com/spec-kit/squad-service/internal/repository"
	"github.com/spec-kit/squad-service/internal/repository/repotest"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

const testSeason = 2026

// birthYearU12 resolves to U12 for the test season.
const birthYearU12 = 2015

type harness struct {
	store     repository.Store
	assign    *AssignmentService
	lifecycle *LifecycleService
	members   *MemberService
	recorder  *eventRecorder
	policies  *policy.Store
}

func newPolicies(t *testing.T, maxOpen, minFill int) *policy.Store {
	t.Helper()
	roster, err := policy.ParseRoster("GK:1,DEF:3,MID:2,FWD:2")
	require.NoError(t, err)
	s, err := policy.New(policy.Policy{
		MaxOpenSquads:            maxOpen,
		MinFillToOpenNextPercent: minFill,
		Roster:                   roster,
	}, nil)
	require.NoError(t, err)
	return s
}

func newHarness(t *testing.T, maxOpen, minFill int) *harness {
	t.Helper()
	return newHarnessWithStore(t, repository.NewMemoryStore(), nil, maxOpen, minFill)
}

// newHarnessWithStore builds the services over store. Member syncing and
// state checks go through base, which defaults to store.
func newHarnessWithStore(t *testing.T, base, store repository.Store, maxOpen, minFill int) *harness {
	t.Helper()
	if store == nil {
		store = base
	}
	policies := newPolicies(t, maxOpen, minFill)
	recorder := newEventRecorder()
	assign := NewAssignmentService(AssignmentDependencies{
		Store:      store,
		Policies:   policies,
		Resolver:   cohort.NewResolver(testSeason, 1),
		Dispatcher: recorder.dispatcher,
	})
	lifecycle := NewLifecycleService(LifecycleDependencies{
		Store:      store,
		Dispatcher: recorder.dispatcher,
	})
	return &harness{
		store:     base,
		assign:    assign,
		lifecycle: lifecycle,
		members:   NewMemberService(base, nil),
		recorder:  recorder,
		policies:  policies,
	}
}

func (h *harness) addMember(t *testing.T, id, primary, secondary string) {
	t.Helper()
	year := birthYearU12
	_, err := h.members.SyncProfile(context.Background(), id, MemberProfileInput{
		BirthYear:         &year,
		PrimaryPosition:   primary,
		SecondaryPosition: secondary,
		Status:            domain.MemberStatusActive,
	})
	require.NoError(t, err)
}

// fullRoster lists one position per slot of the default 8-slot template.
var fullRoster = []string{"gk", "def", "def", "def", "mid", "mid", "fwd", "fwd"}

func (h *harness) assignRoster(t *testing.T, prefix string, positions []string) []*domain.Assignment {
	t.Helper()
	out := make([]*domain.Assignment, 0, len(positions))
	for i, pos := range positions {
		id := prefix + "-" + pos + "-" + string(rune('a'+i))
		h.addMember(t, id, pos, "")
		a, err := h.assign.Assign(context.Background(), id)
		require.NoError(t, err, id)
		out = append(out, a)
	}
	return out
}

func (h *harness) squads(t *testing.T) []*domain.Squad {
	t.Helper()
	squads, err := h.lifecycle.ListSquads(context.Background(), "")
	require.NoError(t, err)
	return squads
}

type eventRecorder struct {
	dispatcher events.Dispatcher
	mu         sync.Mutex
	seen       []events.Event
}

func newEventRecorder() *eventRecorder {
	r := &eventRecorder{dispatcher: events.NewInMemoryDispatcher(nil)}
	for _, t := range events.AllEventTypes {
		r.dispatcher.Subscribe(t, func(_ context.Context, e events.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.seen = append(r.seen, e)
			return nil
		})
	}
	return r
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.seen))
	for _, e := range r.seen {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = nil
}

// conflictingStore runs each unit for real, then reports a write conflict
// instead of committing, for the first failures units.
type conflictingStore struct {
	repository.Store
	failures int32
	units    int32
}

func (c *conflictingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	atomic.AddInt32(&c.units, 1)
	if atomic.AddInt32(&c.failures, -1) < 0 {
		return c.Store.WithinTx(ctx, fn)
	}
	return c.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return apperrors.NewAssignmentConflict("simulated serialization failure", nil)
	})
}

func (h *harness) addMemberBorn(t *testing.T, id string, birthYear int, primary, secondary string) {
	t.Helper()
	_, err := h.members.SyncProfile(context.Background(), id, MemberProfileInput{
		BirthYear:         &birthYear,
		PrimaryPosition:   primary,
		SecondaryPosition: secondary,
		Status:            domain.MemberStatusActive,
	})
	require.NoError(t, err)
}

// forEachStore runs check against the in-memory store and, when
// TEST_POSTGRES_DSN is set, against Postgres in a private schema.
func forEachStore(t *testing.T, check func(t *testing.T, store repository.Store)) {
	t.Run("memory", func(t *testing.T) {
		check(t, repository.NewMemoryStore())
	})
	t.Run("postgres", func(t *testing.T) {
		check(t, repotest.Postgres(t))
	})
}
