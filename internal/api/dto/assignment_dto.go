package dto

import (
	"time"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/queue"
)

// TriggerAssignmentRequest payload.
type TriggerAssignmentRequest struct {
	MemberID string `json:"member_id"`
}

// AssignmentResponse describes a placed member.
type AssignmentResponse struct {
	ID           string                  `json:"id"`
	MemberID     string                  `json:"member_id"`
	SquadID      string                  `json:"squad_id"`
	AgeGroup     domain.AgeGroup         `json:"age_group"`
	Category     domain.PositionCategory `json:"category"`
	JerseyNumber int                     `json:"jersey_number"`
	CreatedAt    time.Time               `json:"created_at"`
}

// JobFailureResponse is the failure variant of a terminal job.
type JobFailureResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JobResponse reports where an assignment request stands.
type JobResponse struct {
	ID         string              `json:"id"`
	MemberID   string              `json:"member_id"`
	State      queue.JobState      `json:"state"`
	Attempts   int                 `json:"attempts"`
	Result     *AssignmentResponse `json:"result,omitempty"`
	Failure    *JobFailureResponse `json:"failure,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// JobCountsResponse reports jobs per state.
type JobCountsResponse struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// NewAssignmentResponse maps a domain assignment.
func NewAssignmentResponse(a *domain.Assignment) *AssignmentResponse {
	if a == nil {
		return nil
	}
	return &AssignmentResponse{
		ID:           a.ID,
		MemberID:     a.MemberID,
		SquadID:      a.SquadID,
		AgeGroup:     a.AgeGroup,
		Category:     a.Category,
		JerseyNumber: a.JerseyNumber,
		CreatedAt:    a.CreatedAt,
	}
}

// NewJobResponse maps a queue job.
func NewJobResponse(job queue.Job) JobResponse {
	resp := JobResponse{
		ID:         job.ID,
		MemberID:   job.MemberID,
		State:      job.State,
		Attempts:   job.Attempts,
		Result:     NewAssignmentResponse(job.Result),
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Failure != nil {
		resp.Failure = &JobFailureResponse{Kind: job.Failure.Kind, Message: job.Failure.Message}
	}
	return resp
}
