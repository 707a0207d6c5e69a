package dto

import (
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
)

// SyncMemberRequest is pushed by the identity subsystem when a profile changes.
type SyncMemberRequest struct {
	BirthYear         *int   `json:"birth_year"`
	PrimaryPosition   string `json:"primary_position"`
	SecondaryPosition string `json:"secondary_position"`
	Status            string `json:"status"`
}

// MemberResponse describes a member as the engine sees it.
type MemberResponse struct {
	ID                string              `json:"id"`
	BirthYear         *int                `json:"birth_year"`
	PrimaryPosition   string              `json:"primary_position"`
	SecondaryPosition string              `json:"secondary_position,omitempty"`
	Status            domain.MemberStatus `json:"status"`
	AssignmentID      *string             `json:"assignment_id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// NewMemberResponse maps a domain member.
func NewMemberResponse(m *domain.Member) MemberResponse {
	return MemberResponse{
		ID:                m.ID,
		BirthYear:         m.BirthYear,
		PrimaryPosition:   m.PrimaryPosition,
		SecondaryPosition: m.SecondaryPosition,
		Status:            m.Status,
		AssignmentID:      m.AssignmentID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
