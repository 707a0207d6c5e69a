package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Store opens units of work against the squad ledger. Every read and write of
// the engine happens inside WithinTx; a returned error rolls the unit back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of ledger operations available inside one unit of work.
// Lock* methods serialize writers on the locked key until the unit ends.
type Tx interface {
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	// GetMemberForUpdate reads a member and holds its row until the unit ends.
	GetMemberForUpdate(ctx context.Context, id string) (*domain.Member, error)
	UpsertMemberProfile(ctx context.Context, member *domain.Member) error
	SetMemberAssignment(ctx context.Context, memberID string, assignmentID *string) error

	GetSquad(ctx context.Context, id string) (*domain.Squad, error)
	// LockSquad locks the squad row and returns it with a fresh occupancy count.
	LockSquad(ctx context.Context, id string) (*domain.Squad, error)
	// ListActiveSquads returns the non-closed squads of an age group by seq.
	ListActiveSquads(ctx context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error)
	// ListSquads returns every squad, optionally filtered by age group.
	ListSquads(ctx context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error)
	// LockAgeGroup serializes squad creation within an age group.
	LockAgeGroup(ctx context.Context, ageGroup domain.AgeGroup) error
	MaxSquadSeq(ctx context.Context, ageGroup domain.AgeGroup) (int, error)
	CreateSquad(ctx context.Context, squad *domain.Squad) error
	UpdateSquadState(ctx context.Context, id string, state domain.SquadState, at time.Time) error
	DeleteSquad(ctx context.Context, id string) error

	CreateCommunicationGroup(ctx context.Context, group *domain.CommunicationGroup) error
	GetCommunicationGroup(ctx context.Context, squadID string) (*domain.CommunicationGroup, error)
	DeleteCommunicationGroup(ctx context.Context, squadID string) error

	CreateAssignment(ctx context.Context, assignment *domain.Assignment) error
	GetAssignmentByMember(ctx context.Context, memberID string) (*domain.Assignment, error)
	ListSquadAssignments(ctx context.Context, squadID string) ([]domain.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}
