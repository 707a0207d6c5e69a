package events

import (
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMemberAssigned   EventType = "member_assigned"
	EventMemberUnassigned EventType = "member_unassigned"
	EventSquadOpened      EventType = "squad_opened"
	EventSquadFull        EventType = "squad_full"
	EventSquadReopened    EventType = "squad_reopened"
	EventSquadClosed      EventType = "squad_closed"
	EventSquadRemoved     EventType = "squad_removed"
)

// AllEventTypes lists every type the services emit.
var AllEventTypes = []EventType{
	EventMemberAssigned,
	EventMemberUnassigned,
	EventSquadOpened,
	EventSquadFull,
	EventSquadReopened,
	EventSquadClosed,
	EventSquadRemoved,
}

// Event represents a ledger change, published after the change commits.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	AgeGroup  domain.AgeGroup `json:"age_group"`
	SquadID   string          `json:"squad_id"`
	MemberID  string          `json:"member_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// MemberAssignedPayload payload.
type MemberAssignedPayload struct {
	AssignmentID string                  `json:"assignment_id"`
	Category     domain.PositionCategory `json:"category"`
	JerseyNumber int                     `json:"jersey_number"`
}

// SquadOpenedPayload payload.
type SquadOpenedPayload struct {
	Seq                  int    `json:"seq"`
	Name                 string `json:"name"`
	CommunicationGroupID string `json:"communication_group_id"`
}

// SquadStatePayload carries a lifecycle transition.
type SquadStatePayload struct {
	From domain.SquadState `json:"from"`
	To   domain.SquadState `json:"to"`
}
