package dto

import (
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
)

// SlotResponse is the occupancy of one position category.
type SlotResponse struct {
	Category domain.PositionCategory `json:"category"`
	Capacity int                     `json:"capacity"`
	Occupied int                     `json:"occupied"`
}

// SquadSummary response.
type SquadSummary struct {
	ID        string            `json:"id"`
	AgeGroup  domain.AgeGroup   `json:"age_group"`
	Seq       int               `json:"seq"`
	Name      string            `json:"name"`
	State     domain.SquadState `json:"state"`
	Total     int               `json:"total"`
	Occupied  int               `json:"occupied"`
	Slots     []SlotResponse    `json:"slots"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ClosedAt  *time.Time        `json:"closed_at,omitempty"`
}

// CommunicationGroupResponse describes the squad's chat group.
type CommunicationGroupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SquadDetailResponse adds the roster and group to the summary.
type SquadDetailResponse struct {
	SquadSummary
	CommunicationGroup *CommunicationGroupResponse `json:"communication_group,omitempty"`
	Roster             []AssignmentResponse        `json:"roster"`
}

// NewSquadSummary maps a domain squad.
func NewSquadSummary(s *domain.Squad) SquadSummary {
	slots := make([]SlotResponse, 0, len(s.Template.Slots))
	for _, category := range domain.PositionCategories {
		capacity, ok := s.Template.Slots[category]
		if !ok {
			continue
		}
		slots = append(slots, SlotResponse{
			Category: category,
			Capacity: capacity,
			Occupied: s.Occupancy[category],
		})
	}
	return SquadSummary{
		ID:        s.ID,
		AgeGroup:  s.AgeGroup,
		Seq:       s.Seq,
		Name:      s.Name,
		State:     s.State,
		Total:     s.Template.Total,
		Occupied:  s.Occupied(),
		Slots:     slots,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ClosedAt:  s.ClosedAt,
	}
}

// NewSquadDetail maps a squad with its group and roster.
func NewSquadDetail(squad *domain.Squad, group *domain.CommunicationGroup, roster []domain.Assignment) SquadDetailResponse {
	resp := SquadDetailResponse{
		SquadSummary: NewSquadSummary(squad),
		Roster:       make([]AssignmentResponse, 0, len(roster)),
	}
	if group != nil {
		resp.CommunicationGroup = &CommunicationGroupResponse{ID: group.ID, Name: group.Name, CreatedAt: group.CreatedAt}
	}
	for i := range roster {
		resp.Roster = append(resp.Roster, *NewAssignmentResponse(&roster[i]))
	}
	return resp
}
