package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
	"github.com/spec-kit/squad-service/internal/repository"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// PolicySource yields the capacity policy of an age group.
type PolicySource interface {
	Get(ageGroup domain.AgeGroup) policy.Policy
}

// Ledger answers placement questions about the squads of an age group. All
// methods run inside the caller's unit of work.
type Ledger struct {
	policies PolicySource
}

// NewLedger builds a ledger over the given policies.
func NewLedger(policies PolicySource) *Ledger {
	return &Ledger{policies: policies}
}

// FindCandidateSquad returns the earliest OPEN squad with a free slot in
// category, or nil when there is none.
func (l *Ledger) FindCandidateSquad(ctx context.Context, tx repository.Tx, ageGroup domain.AgeGroup, category domain.PositionCategory) (*domain.Squad, error) {
	squads, err := tx.ListActiveSquads(ctx, ageGroup)
	if err != nil {
		return nil, err
	}
	return firstWithRoom(squads, category), nil
}

func firstWithRoom(squads []*domain.Squad, category domain.PositionCategory) *domain.Squad {
	for _, s := range squads {
		if s.State == domain.SquadStateOpen && s.HasRoom(category) {
			return s
		}
	}
	return nil
}

// CanOpenNewSquad reports whether policy allows another squad in the age group.
func (l *Ledger) CanOpenNewSquad(ctx context.Context, tx repository.Tx, ageGroup domain.AgeGroup) (bool, error) {
	squads, err := tx.ListActiveSquads(ctx, ageGroup)
	if err != nil {
		return false, err
	}
	return canOpen(l.policies.Get(ageGroup), squads), nil
}

// canOpen applies the gate: fewer than MaxOpenSquads non-closed squads, and
// either none at all or an aggregate fill of at least the threshold.
func canOpen(p policy.Policy, active []*domain.Squad) bool {
	if len(active) >= p.MaxOpenSquads {
		return false
	}
	if len(active) == 0 {
		return true
	}
	occupied, capacity := 0, 0
	for _, s := range active {
		occupied += s.Occupied()
		capacity += s.Template.Total
	}
	if capacity == 0 {
		return true
	}
	return occupied*100 >= p.MinFillToOpenNextPercent*capacity
}

// OpenNewSquad creates the next squad of the age group together with its
// communication group. The age-group lock is held for the rest of the unit.
func (l *Ledger) OpenNewSquad(ctx context.Context, tx repository.Tx, ageGroup domain.AgeGroup) (*domain.Squad, *domain.CommunicationGroup, error) {
	if err := tx.LockAgeGroup(ctx, ageGroup); err != nil {
		return nil, nil, err
	}
	p := l.policies.Get(ageGroup)
	active, err := tx.ListActiveSquads(ctx, ageGroup)
	if err != nil {
		return nil, nil, err
	}
	if !canOpen(p, active) {
		return nil, nil, apperrors.NewPolicyViolation("policy does not allow another squad", map[string]any{
			"age_group":        ageGroup,
			"active_squads":    len(active),
			"max_open_squads":  p.MaxOpenSquads,
			"min_fill_percent": p.MinFillToOpenNextPercent,
		})
	}

	maxSeq, err := tx.MaxSquadSeq(ctx, ageGroup)
	if err != nil {
		return nil, nil, err
	}
	seq := maxSeq + 1
	squad := &domain.Squad{
		ID:        uuid.NewString(),
		AgeGroup:  ageGroup,
		Seq:       seq,
		Name:      domain.SquadName(ageGroup, seq),
		State:     domain.SquadStateOpen,
		Template:  p.Roster.Clone(),
		Occupancy: map[domain.PositionCategory]int{},
	}
	if err := tx.CreateSquad(ctx, squad); err != nil {
		return nil, nil, err
	}
	group := &domain.CommunicationGroup{
		ID:      uuid.NewString(),
		SquadID: squad.ID,
		Name:    squad.Name + " Chat",
	}
	if err := tx.CreateCommunicationGroup(ctx, group); err != nil {
		return nil, nil, err
	}
	return squad, group, nil
}

// nextJerseyNumber returns the lowest number in 1..total not yet taken.
func nextJerseyNumber(taken []domain.Assignment, total int) (int, bool) {
	used := make(map[int]struct{}, len(taken))
	for _, a := range taken {
		used[a.JerseyNumber] = struct{}{}
	}
	for n := 1; n <= total; n++ {
		if _, ok := used[n]; !ok {
			return n, true
		}
	}
	return 0, false
}
