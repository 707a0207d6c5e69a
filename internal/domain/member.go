package domain

import "time"

// MemberStatus represents lifecycle states owned by the identity subsystem.
type MemberStatus string

const (
	MemberStatusPending   MemberStatus = "PENDING"
	MemberStatusActive    MemberStatus = "ACTIVE"
	MemberStatusSuspended MemberStatus = "SUSPENDED"
)

// Valid reports whether s is a known status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusPending, MemberStatusActive, MemberStatusSuspended:
		return true
	}
	return false
}

// Member is the engine's view of a club member. Only BirthYear and the
// positions are read; AssignmentID is the back-reference the engine writes.
type Member struct {
	ID                string
	BirthYear         *int
	PrimaryPosition   string
	SecondaryPosition string
	Status            MemberStatus
	AssignmentID      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Assigned reports whether the member already holds an assignment.
func (m *Member) Assigned() bool {
	return m.AssignmentID != nil && *m.AssignmentID != ""
}
