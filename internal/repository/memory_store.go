package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

type memState struct {
	members     map[string]domain.Member
	squads      map[string]domain.Squad
	assignments map[string]domain.Assignment
	groups      map[string]domain.CommunicationGroup // keyed by squad id
}

func (s *memState) clone() *memState {
	out := &memState{
		members:     make(map[string]domain.Member, len(s.members)),
		squads:      make(map[string]domain.Squad, len(s.squads)),
		assignments: make(map[string]domain.Assignment, len(s.assignments)),
		groups:      make(map[string]domain.CommunicationGroup, len(s.groups)),
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.squads {
		v.Template = v.Template.Clone()
		out.squads[k] = v
	}
	for k, v := range s.assignments {
		out.assignments[k] = v
	}
	for k, v := range s.groups {
		out.groups[k] = v
	}
	return out
}

// MemoryStore keeps the ledger in process memory. Units of work run one at a
// time against a private copy that replaces the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			members:     map[string]domain.Member{},
			squads:      map[string]domain.Squad{},
			assignments: map[string]domain.Assignment{},
			groups:      map[string]domain.CommunicationGroup{},
		},
		now: time.Now,
	}
}

// WithinTx runs fn under the store lock and commits its writes if it succeeds.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) GetMember(_ context.Context, id string) (*domain.Member, error) {
	m, ok := t.state.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMember(m), nil
}

func (t *memTx) GetMemberForUpdate(ctx context.Context, id string) (*domain.Member, error) {
	return t.GetMember(ctx, id)
}

func (t *memTx) UpsertMemberProfile(_ context.Context, member *domain.Member) error {
	now := t.now()
	existing, ok := t.state.members[member.ID]
	if ok {
		existing.BirthYear = copyInt(member.BirthYear)
		existing.PrimaryPosition = member.PrimaryPosition
		existing.SecondaryPosition = member.SecondaryPosition
		existing.Status = member.Status
		existing.UpdatedAt = now
		t.state.members[member.ID] = existing
	} else {
		stored := domain.Member{
			ID:                member.ID,
			BirthYear:         copyInt(member.BirthYear),
			PrimaryPosition:   member.PrimaryPosition,
			SecondaryPosition: member.SecondaryPosition,
			Status:            member.Status,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		t.state.members[member.ID] = stored
		existing = stored
	}
	member.AssignmentID = copyString(existing.AssignmentID)
	member.CreatedAt = existing.CreatedAt
	member.UpdatedAt = existing.UpdatedAt
	return nil
}

func (t *memTx) SetMemberAssignment(_ context.Context, memberID string, assignmentID *string) error {
	m, ok := t.state.members[memberID]
	if !ok {
		return ErrNotFound
	}
	m.AssignmentID = copyString(assignmentID)
	m.UpdatedAt = t.now()
	t.state.members[memberID] = m
	return nil
}

func (t *memTx) GetSquad(_ context.Context, id string) (*domain.Squad, error) {
	s, ok := t.state.squads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.withOccupancy(s), nil
}

func (t *memTx) LockSquad(ctx context.Context, id string) (*domain.Squad, error) {
	return t.GetSquad(ctx, id)
}

func (t *memTx) ListActiveSquads(_ context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error) {
	return t.list(func(s domain.Squad) bool {
		return s.AgeGroup == ageGroup && s.State != domain.SquadStateClosed
	}), nil
}

func (t *memTx) ListSquads(_ context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error) {
	return t.list(func(s domain.Squad) bool {
		return ageGroup == "" || s.AgeGroup == ageGroup
	}), nil
}

func (t *memTx) list(keep func(domain.Squad) bool) []*domain.Squad {
	out := make([]*domain.Squad, 0)
	for _, s := range t.state.squads {
		if keep(s) {
			out = append(out, t.withOccupancy(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgeGroup != out[j].AgeGroup {
			return out[i].AgeGroup < out[j].AgeGroup
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (t *memTx) LockAgeGroup(context.Context, domain.AgeGroup) error { return nil }

func (t *memTx) MaxSquadSeq(_ context.Context, ageGroup domain.AgeGroup) (int, error) {
	max := 0
	for _, s := range t.state.squads {
		if s.AgeGroup == ageGroup && s.Seq > max {
			max = s.Seq
		}
	}
	return max, nil
}

func (t *memTx) CreateSquad(_ context.Context, squad *domain.Squad) error {
	for _, s := range t.state.squads {
		if s.AgeGroup == squad.AgeGroup && s.Seq == squad.Seq {
			return apperrors.NewAssignmentConflict("squad sequence already taken", nil)
		}
	}
	now := t.now()
	squad.CreatedAt = now
	squad.UpdatedAt = now
	stored := *squad
	stored.Template = squad.Template.Clone()
	stored.Occupancy = nil
	t.state.squads[squad.ID] = stored
	if squad.Occupancy == nil {
		squad.Occupancy = map[domain.PositionCategory]int{}
	}
	return nil
}

func (t *memTx) UpdateSquadState(_ context.Context, id string, state domain.SquadState, at time.Time) error {
	s, ok := t.state.squads[id]
	if !ok {
		return ErrNotFound
	}
	s.State = state
	s.UpdatedAt = at
	if state == domain.SquadStateClosed {
		closed := at
		s.ClosedAt = &closed
	}
	t.state.squads[id] = s
	return nil
}

func (t *memTx) DeleteSquad(_ context.Context, id string) error {
	if _, ok := t.state.squads[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.squads, id)
	delete(t.state.groups, id)
	return nil
}

func (t *memTx) CreateCommunicationGroup(_ context.Context, group *domain.CommunicationGroup) error {
	if _, ok := t.state.groups[group.SquadID]; ok {
		return apperrors.NewAssignmentConflict("communication group already exists", nil)
	}
	group.CreatedAt = t.now()
	t.state.groups[group.SquadID] = *group
	return nil
}

func (t *memTx) GetCommunicationGroup(_ context.Context, squadID string) (*domain.CommunicationGroup, error) {
	g, ok := t.state.groups[squadID]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (t *memTx) DeleteCommunicationGroup(_ context.Context, squadID string) error {
	delete(t.state.groups, squadID)
	return nil
}

func (t *memTx) CreateAssignment(_ context.Context, a *domain.Assignment) error {
	if _, ok := t.state.squads[a.SquadID]; !ok {
		return ErrNotFound
	}
	for _, existing := range t.state.assignments {
		if existing.MemberID == a.MemberID {
			return apperrors.NewAssignmentConflict("member already assigned", nil)
		}
		if existing.SquadID == a.SquadID && existing.JerseyNumber == a.JerseyNumber {
			return apperrors.NewAssignmentConflict("jersey number already taken", nil)
		}
	}
	a.CreatedAt = t.now()
	t.state.assignments[a.ID] = *a
	return nil
}

func (t *memTx) GetAssignmentByMember(_ context.Context, memberID string) (*domain.Assignment, error) {
	for _, a := range t.state.assignments {
		if a.MemberID == memberID {
			out := a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListSquadAssignments(_ context.Context, squadID string) ([]domain.Assignment, error) {
	out := make([]domain.Assignment, 0)
	for _, a := range t.state.assignments {
		if a.SquadID == squadID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JerseyNumber < out[j].JerseyNumber })
	return out, nil
}

func (t *memTx) DeleteAssignment(_ context.Context, id string) error {
	if _, ok := t.state.assignments[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.assignments, id)
	return nil
}

func (t *memTx) withOccupancy(s domain.Squad) *domain.Squad {
	out := s
	out.Template = s.Template.Clone()
	out.Occupancy = map[domain.PositionCategory]int{}
	for _, a := range t.state.assignments {
		if a.SquadID == s.ID {
			out.Occupancy[a.Category]++
		}
	}
	return &out
}

func copyMember(m domain.Member) *domain.Member {
	out := m
	out.BirthYear = copyInt(m.BirthYear)
	out.AssignmentID = copyString(m.AssignmentID)
	return &out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
