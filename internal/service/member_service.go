package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/repository"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// MemberProfileInput is the subset of a member profile mirrored from the
// identity subsystem.
type MemberProfileInput struct {
	BirthYear         *int
	PrimaryPosition   string
	SecondaryPosition string
	Status            domain.MemberStatus
}

// MemberService mirrors member profiles into the ledger store.
type MemberService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewMemberService creates the service.
func NewMemberService(store repository.Store, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberService{store: store, logger: logger}
}

// SyncProfile creates or updates a member profile. The assignment
// back-reference is never touched here.
func (s *MemberService) SyncProfile(ctx context.Context, memberID string, input MemberProfileInput) (*domain.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, apperrors.NewValidationError("member id is required", nil)
	}
	status := domain.MemberStatus(strings.ToUpper(strings.TrimSpace(string(input.Status))))
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid member status", map[string]any{"status": input.Status})
	}

	member := &domain.Member{
		ID:                memberID,
		BirthYear:         input.BirthYear,
		PrimaryPosition:   strings.TrimSpace(input.PrimaryPosition),
		SecondaryPosition: strings.TrimSpace(input.SecondaryPosition),
		Status:            status,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertMemberProfile(ctx, member)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("member profile synced", zap.String("member_id", memberID), zap.String("status", string(status)))
	return member, nil
}

// GetMember returns the mirrored profile.
func (s *MemberService) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	var out *domain.Member
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("member", map[string]any{"member_id": memberID})
			}
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
