package domain

import "time"

// Assignment pairs one member with one squad slot.
type Assignment struct {
	ID           string           `json:"id"`
	MemberID     string           `json:"member_id"`
	SquadID      string           `json:"squad_id"`
	AgeGroup     AgeGroup         `json:"age_group"`
	Category     PositionCategory `json:"category"`
	JerseyNumber int              `json:"jersey_number"`
	CreatedAt    time.Time        `json:"created_at"`
}

// CommunicationGroup is the chat placeholder provisioned with a squad.
type CommunicationGroup struct {
	ID        string
	SquadID   string
	Name      string
	CreatedAt time.Time
}
