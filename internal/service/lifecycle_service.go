package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/events"
	"github.com/spec-kit/squad-service/internal/repository"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// SquadView is a squad with its roster and communication group.
type SquadView struct {
	Squad       *domain.Squad
	Group       *domain.CommunicationGroup
	Assignments []domain.Assignment
}

// LifecycleService handles administrative squad transitions.
type LifecycleService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewLifecycleService creates the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// DeleteSquad removes an empty squad and its communication group.
func (s *LifecycleService) DeleteSquad(ctx context.Context, squadID string) error {
	var removed *domain.Squad
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		squad, err := s.lockSquad(ctx, tx, squadID)
		if err != nil {
			return err
		}
		if !squad.Empty() {
			return apperrors.NewSquadNotEmpty("squad still has assigned members", map[string]any{
				"squad_id": squadID,
				"members":  squad.Occupied(),
			})
		}
		if err := tx.DeleteCommunicationGroup(ctx, squadID); err != nil {
			return err
		}
		if err := tx.DeleteSquad(ctx, squadID); err != nil {
			return err
		}
		removed = squad
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("squad deleted", zap.String("squad_id", squadID), zap.String("age_group", string(removed.AgeGroup)))
	s.publish(ctx, events.EventSquadRemoved, removed, "", nil)
	return nil
}

// CloseSquad archives an empty squad. Closed squads never reopen and no
// longer count against the age group's squad limit.
func (s *LifecycleService) CloseSquad(ctx context.Context, squadID string) (*domain.Squad, error) {
	var (
		closed *domain.Squad
		from   domain.SquadState
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		squad, err := s.lockSquad(ctx, tx, squadID)
		if err != nil {
			return err
		}
		closed = squad
		from = squad.State
		if squad.State == domain.SquadStateClosed {
			return nil
		}
		if !squad.Empty() {
			return apperrors.NewSquadNotEmpty("only empty squads can be closed", map[string]any{
				"squad_id": squadID,
				"members":  squad.Occupied(),
			})
		}
		at := s.now()
		if err := tx.UpdateSquadState(ctx, squadID, domain.SquadStateClosed, at); err != nil {
			return err
		}
		squad.State = domain.SquadStateClosed
		squad.ClosedAt = &at
		squad.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != domain.SquadStateClosed {
		s.logger.Info("squad closed", zap.String("squad_id", squadID))
		s.publish(ctx, events.EventSquadClosed, closed, "", events.SquadStatePayload{From: from, To: domain.SquadStateClosed})
	}
	return closed, nil
}

// RemoveAssignment frees the member's slot. A FULL squad becomes OPEN again.
func (s *LifecycleService) RemoveAssignment(ctx context.Context, memberID string) (*domain.Assignment, error) {
	var (
		removed  *domain.Assignment
		squad    *domain.Squad
		reopened bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetMemberForUpdate(ctx, memberID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("member", map[string]any{"member_id": memberID})
			}
			return err
		}
		assignment, err := tx.GetAssignmentByMember(ctx, memberID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("assignment", map[string]any{"member_id": memberID})
			}
			return err
		}
		squad, err = s.lockSquad(ctx, tx, assignment.SquadID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, assignment.ID); err != nil {
			return err
		}
		if err := tx.SetMemberAssignment(ctx, memberID, nil); err != nil {
			return err
		}
		squad.Occupancy[assignment.Category]--
		if squad.State == domain.SquadStateFull {
			if err := tx.UpdateSquadState(ctx, squad.ID, domain.SquadStateOpen, s.now()); err != nil {
				return err
			}
			squad.State = domain.SquadStateOpen
			reopened = true
		}
		removed = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment removed",
		zap.String("member_id", memberID),
		zap.String("squad_id", removed.SquadID),
		zap.Bool("reopened", reopened))
	s.publish(ctx, events.EventMemberUnassigned, squad, memberID, nil)
	if reopened {
		s.publish(ctx, events.EventSquadReopened, squad, "", events.SquadStatePayload{From: domain.SquadStateFull, To: domain.SquadStateOpen})
	}
	return removed, nil
}

// GetSquad returns the squad with its occupancy, roster and group.
func (s *LifecycleService) GetSquad(ctx context.Context, squadID string) (*SquadView, error) {
	view := &SquadView{}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		squad, err := tx.GetSquad(ctx, squadID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("squad", map[string]any{"squad_id": squadID})
			}
			return err
		}
		view.Squad = squad

		group, err := tx.GetCommunicationGroup(ctx, squadID)
		switch {
		case err == nil:
			view.Group = group
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		view.Assignments, err = tx.ListSquadAssignments(ctx, squadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListSquads returns squads ordered by age group and seq. An empty age group
// lists all of them.
func (s *LifecycleService) ListSquads(ctx context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error) {
	var out []*domain.Squad
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		squads, err := tx.ListSquads(ctx, ageGroup)
		out = squads
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LifecycleService) lockSquad(ctx context.Context, tx repository.Tx, squadID string) (*domain.Squad, error) {
	squad, err := tx.LockSquad(ctx, squadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("squad", map[string]any{"squad_id": squadID})
		}
		return nil, err
	}
	return squad, nil
}

func (s *LifecycleService) publish(ctx context.Context, eventType events.EventType, squad *domain.Squad, memberID string, payload any) {
	if s.dispatcher == nil || squad == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AgeGroup:  squad.AgeGroup,
		SquadID:   squad.ID,
		MemberID:  memberID,
		Timestamp: s.now(),
		Payload:   payload,
	})
}
