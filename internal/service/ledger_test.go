package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
	"github.com/spec-kit/squad-service/internal/repository"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

func squadWith(occupied int) *domain.Squad {
	return &domain.Squad{
		State:     domain.SquadStateOpen,
		Template:  domain.RosterTemplate{Total: 8},
		Occupancy: map[domain.PositionCategory]int{domain.PositionDefender: occupied},
	}
}

func TestCanOpen(t *testing.T) {
	cases := []struct {
		name    string
		maxOpen int
		minFill int
		active  []*domain.Squad
		want    bool
	}{
		{name: "first squad", maxOpen: 1, minFill: 80, want: true},
		{name: "limit reached", maxOpen: 1, minFill: 0, active: []*domain.Squad{squadWith(8)}},
		{name: "below threshold", maxOpen: 2, minFill: 80, active: []*domain.Squad{squadWith(6)}},
		{name: "above threshold", maxOpen: 2, minFill: 80, active: []*domain.Squad{squadWith(7)}, want: true},
		{name: "threshold is inclusive", maxOpen: 2, minFill: 75, active: []*domain.Squad{squadWith(6)}, want: true},
		{name: "aggregate below", maxOpen: 3, minFill: 80, active: []*domain.Squad{squadWith(8), squadWith(4)}},
		{name: "aggregate above", maxOpen: 3, minFill: 80, active: []*domain.Squad{squadWith(8), squadWith(6)}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := policy.Policy{MaxOpenSquads: tc.maxOpen, MinFillToOpenNextPercent: tc.minFill}
			require.Equal(t, tc.want, canOpen(p, tc.active))
		})
	}
}

func TestNextJerseyNumber(t *testing.T) {
	taken := []domain.Assignment{{JerseyNumber: 1}, {JerseyNumber: 3}}
	n, ok := nextJerseyNumber(taken, 3)
	require.True(t, ok)
	require.Equal(t, 2, n)

	_, ok = nextJerseyNumber(append(taken, domain.Assignment{JerseyNumber: 2}), 3)
	require.False(t, ok)
}

func TestLedgerOpenNewSquadEnforcesPolicy(t *testing.T) {
	store := repository.NewMemoryStore()
	ledger := NewLedger(newPolicies(t, 1, 80))
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		squad, group, err := ledger.OpenNewSquad(ctx, tx, "U10")
		require.NoError(t, err)
		require.Equal(t, 1, squad.Seq)
		require.Equal(t, domain.SquadStateOpen, squad.State)
		require.Equal(t, 8, squad.Template.Total)
		require.Equal(t, squad.ID, group.SquadID)

		candidate, err := ledger.FindCandidateSquad(ctx, tx, "U10", domain.PositionGoalkeeper)
		require.NoError(t, err)
		require.Equal(t, squad.ID, candidate.ID)

		ok, err := ledger.CanOpenNewSquad(ctx, tx, "U10")
		require.NoError(t, err)
		require.False(t, ok)

		_, _, err = ledger.OpenNewSquad(ctx, tx, "U10")
		require.True(t, errors.Is(err, apperrors.ErrPolicyViolation), "got %v", err)
		return nil
	})
	require.NoError(t, err)
}
