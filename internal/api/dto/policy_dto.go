package dto

import (
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
)

// PolicyResponse describes the policy in force for an age group.
type PolicyResponse struct {
	AgeGroup                 domain.AgeGroup                 `json:"age_group"`
	MaxOpenSquads            int                             `json:"max_open_squads"`
	MinFillToOpenNextPercent int                             `json:"min_fill_to_open_next_percent"`
	RosterTotal              int                             `json:"roster_total"`
	Roster                   map[domain.PositionCategory]int `json:"roster"`
}

// NewPolicyResponse maps a policy.
func NewPolicyResponse(ageGroup domain.AgeGroup, p policy.Policy) PolicyResponse {
	return PolicyResponse{
		AgeGroup:                 ageGroup,
		MaxOpenSquads:            p.MaxOpenSquads,
		MinFillToOpenNextPercent: p.MinFillToOpenNextPercent,
		RosterTotal:              p.Roster.Total,
		Roster:                   p.Roster.Slots,
	}
}
