package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/cohort"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/events"
	"github.com/spec-kit/squad-service/internal/observability"
	"github.com/spec-kit/squad-service/internal/repository"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

const defaultMaxTxAttempts = 3

// AssignmentService places eligible members into squads.
type AssignmentService struct {
	store         repository.Store
	ledger        *Ledger
	resolver      *cohort.Resolver
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	maxTxAttempts int
	now           func() time.Time
}

// AssignmentDependencies bundles collaborators for the assignment service.
type AssignmentDependencies struct {
	Store         repository.Store
	Policies      PolicySource
	Resolver      *cohort.Resolver
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	MaxTxAttempts int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := deps.MaxTxAttempts
	if attempts < 1 {
		attempts = defaultMaxTxAttempts
	}
	return &AssignmentService{
		store:         deps.Store,
		ledger:        NewLedger(deps.Policies),
		resolver:      deps.Resolver,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		maxTxAttempts: attempts,
		now:           time.Now,
	}
}

// Assign places the member in a squad of their age group. The whole decision
// runs as one unit of work; a unit that loses a race is rerun from the start.
func (s *AssignmentService) Assign(ctx context.Context, memberID string) (*domain.Assignment, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxTxAttempts; attempt++ {
		assignment, pending, err := s.assignOnce(ctx, memberID)
		if err == nil {
			s.metrics.RecordAssignment("assigned")
			s.logger.Info("member assigned",
				zap.String("member_id", memberID),
				zap.String("squad_id", assignment.SquadID),
				zap.String("age_group", string(assignment.AgeGroup)),
				zap.String("category", string(assignment.Category)),
				zap.Int("jersey_number", assignment.JerseyNumber),
				zap.Int("attempt", attempt))
			s.publish(ctx, pending)
			return assignment, nil
		}
		lastErr = err
		if !errors.Is(err, apperrors.ErrAssignmentConflict) || ctx.Err() != nil {
			break
		}
		s.metrics.RecordTxRetry()
		s.logger.Debug("assignment conflict, retrying",
			zap.String("member_id", memberID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	s.metrics.RecordAssignment(outcomeOf(lastErr))
	return nil, lastErr
}

// AssignmentForMember returns the member's current assignment.
func (s *AssignmentService) AssignmentForMember(ctx context.Context, memberID string) (*domain.Assignment, error) {
	var out *domain.Assignment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.GetAssignmentByMember(ctx, memberID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("assignment", map[string]any{"member_id": memberID})
			}
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentService) assignOnce(ctx context.Context, memberID string) (*domain.Assignment, []events.Event, error) {
	var (
		result  *domain.Assignment
		pending []events.Event
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		member, err := tx.GetMemberForUpdate(ctx, memberID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("member", map[string]any{"member_id": memberID})
			}
			return err
		}
		if member.Status != domain.MemberStatusActive {
			return apperrors.NewMemberNotEligible("member is not active", map[string]any{
				"member_id": memberID,
				"status":    member.Status,
			})
		}
		if member.Assigned() {
			return apperrors.NewMemberNotEligible("member already assigned", map[string]any{
				"member_id":     memberID,
				"assignment_id": *member.AssignmentID,
			})
		}

		c, err := s.resolver.Resolve(member.BirthYear, member.PrimaryPosition, member.SecondaryPosition)
		if err != nil {
			return err
		}

		squad, category, err := s.findPlacement(ctx, tx, c)
		if err != nil {
			return err
		}
		if squad == nil {
			// Creation is serialized per age group; look again under the lock
			// since a concurrent unit may have opened a squad meanwhile.
			if err := tx.LockAgeGroup(ctx, c.AgeGroup); err != nil {
				return err
			}
			squad, category, err = s.findPlacement(ctx, tx, c)
			if err != nil {
				return err
			}
		}
		if squad == nil {
			squad, category, err = s.openForCohort(ctx, tx, c, &pending)
			if err != nil {
				return err
			}
		}

		result, err = s.place(ctx, tx, squad, category, member, &pending)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return result, pending, nil
}

// findPlacement returns a locked squad with room in the first category that
// has one. A squad that filled up between the scan and the lock is a conflict.
func (s *AssignmentService) findPlacement(ctx context.Context, tx repository.Tx, c cohort.Cohort) (*domain.Squad, domain.PositionCategory, error) {
	for _, category := range c.Categories() {
		candidate, err := s.ledger.FindCandidateSquad(ctx, tx, c.AgeGroup, category)
		if err != nil {
			return nil, "", err
		}
		if candidate == nil {
			continue
		}
		locked, err := tx.LockSquad(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, "", apperrors.NewAssignmentConflict("candidate squad removed", err)
			}
			return nil, "", err
		}
		if locked.State != domain.SquadStateOpen || !locked.HasRoom(category) {
			return nil, "", apperrors.NewAssignmentConflict("candidate squad slot taken", nil)
		}
		return locked, category, nil
	}
	return nil, "", nil
}

func (s *AssignmentService) openForCohort(ctx context.Context, tx repository.Tx, c cohort.Cohort, pending *[]events.Event) (*domain.Squad, domain.PositionCategory, error) {
	p := s.ledger.policies.Get(c.AgeGroup)
	var category domain.PositionCategory
	for _, candidate := range c.Categories() {
		if p.Roster.Capacity(candidate) > 0 {
			category = candidate
			break
		}
	}
	if category == "" {
		return nil, "", apperrors.NewCapacityExhausted("roster has no slot for the member's positions", map[string]any{
			"age_group": c.AgeGroup,
			"primary":   c.Primary,
		})
	}

	ok, err := s.ledger.CanOpenNewSquad(ctx, tx, c.AgeGroup)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", apperrors.NewCapacityExhausted("no squad has room and policy forbids opening another", map[string]any{
			"age_group":       c.AgeGroup,
			"category":        category,
			"max_open_squads": p.MaxOpenSquads,
		})
	}

	squad, group, err := s.ledger.OpenNewSquad(ctx, tx, c.AgeGroup)
	if err != nil {
		return nil, "", err
	}
	s.metrics.RecordSquadOpened(string(c.AgeGroup))
	*pending = append(*pending, s.event(events.EventSquadOpened, squad, "", events.SquadOpenedPayload{
		Seq:                  squad.Seq,
		Name:                 squad.Name,
		CommunicationGroupID: group.ID,
	}))
	return squad, category, nil
}

func (s *AssignmentService) place(ctx context.Context, tx repository.Tx, squad *domain.Squad, category domain.PositionCategory, member *domain.Member, pending *[]events.Event) (*domain.Assignment, error) {
	taken, err := tx.ListSquadAssignments(ctx, squad.ID)
	if err != nil {
		return nil, err
	}
	jersey, ok := nextJerseyNumber(taken, squad.Template.Total)
	if !ok {
		return nil, apperrors.NewAssignmentConflict("no free jersey number", nil)
	}

	assignment := &domain.Assignment{
		ID:           uuid.NewString(),
		MemberID:     member.ID,
		SquadID:      squad.ID,
		AgeGroup:     squad.AgeGroup,
		Category:     category,
		JerseyNumber: jersey,
	}
	if err := tx.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	if err := tx.SetMemberAssignment(ctx, member.ID, &assignment.ID); err != nil {
		return nil, err
	}
	*pending = append(*pending, s.event(events.EventMemberAssigned, squad, member.ID, events.MemberAssignedPayload{
		AssignmentID: assignment.ID,
		Category:     category,
		JerseyNumber: jersey,
	}))

	if squad.Occupancy == nil {
		squad.Occupancy = map[domain.PositionCategory]int{}
	}
	squad.Occupancy[category]++
	if squad.IsFull() {
		if err := tx.UpdateSquadState(ctx, squad.ID, domain.SquadStateFull, s.now()); err != nil {
			return nil, err
		}
		*pending = append(*pending, s.event(events.EventSquadFull, squad, "", events.SquadStatePayload{
			From: domain.SquadStateOpen,
			To:   domain.SquadStateFull,
		}))
		squad.State = domain.SquadStateFull
	}
	return assignment, nil
}

func (s *AssignmentService) event(eventType events.EventType, squad *domain.Squad, memberID string, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AgeGroup:  squad.AgeGroup,
		SquadID:   squad.ID,
		MemberID:  memberID,
		Timestamp: s.now(),
		Payload:   payload,
	}
}

func (s *AssignmentService) publish(ctx context.Context, pending []events.Event) {
	publishAll(ctx, s.dispatcher, pending)
}

func publishAll(ctx context.Context, dispatcher events.Dispatcher, pending []events.Event) {
	if dispatcher == nil {
		return
	}
	for _, e := range pending {
		_ = dispatcher.Publish(ctx, e)
	}
}

// outcomeOf labels a failed assignment for metrics.
func outcomeOf(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Kind()
	}
	return "unknown"
}
