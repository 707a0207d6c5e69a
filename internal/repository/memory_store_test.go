package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/domain"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

func testSquad(id string, seq int) *domain.Squad {
	return &domain.Squad{
		ID:       id,
		AgeGroup: "U12",
		Seq:      seq,
		Name:     domain.SquadName("U12", seq),
		State:    domain.SquadStateOpen,
		Template: domain.RosterTemplate{Total: 2, Slots: map[domain.PositionCategory]int{
			domain.PositionGoalkeeper: 1,
			domain.PositionDefender:   1,
		}},
	}
}

func seedMember(t *testing.T, store Store, id string) {
	t.Helper()
	year := 2014
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.UpsertMemberProfile(ctx, &domain.Member{
			ID:              id,
			BirthYear:       &year,
			PrimaryPosition: "gk",
			Status:          domain.MemberStatusActive,
		})
	})
	require.NoError(t, err)
}

func TestMemoryStoreRollsBackFailedUnit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.CreateSquad(ctx, testSquad("s1", 1)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetSquad(ctx, "s1")
		require.ErrorIs(t, err, ErrNotFound)
		squads, err := tx.ListSquads(ctx, "")
		require.NoError(t, err)
		require.Empty(t, squads)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreOccupancyAndUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMember(t, store, "m1")
	seedMember(t, store, "m2")

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.CreateSquad(ctx, testSquad("s1", 1)))
		err := tx.CreateSquad(ctx, testSquad("s2", 1))
		require.True(t, errors.Is(err, apperrors.ErrAssignmentConflict))

		require.NoError(t, tx.CreateAssignment(ctx, &domain.Assignment{
			ID: "a1", MemberID: "m1", SquadID: "s1", AgeGroup: "U12",
			Category: domain.PositionGoalkeeper, JerseyNumber: 1,
		}))
		err = tx.CreateAssignment(ctx, &domain.Assignment{
			ID: "a2", MemberID: "m1", SquadID: "s1", AgeGroup: "U12",
			Category: domain.PositionDefender, JerseyNumber: 2,
		})
		require.True(t, errors.Is(err, apperrors.ErrAssignmentConflict))
		err = tx.CreateAssignment(ctx, &domain.Assignment{
			ID: "a3", MemberID: "m2", SquadID: "s1", AgeGroup: "U12",
			Category: domain.PositionDefender, JerseyNumber: 1,
		})
		require.True(t, errors.Is(err, apperrors.ErrAssignmentConflict))

		squad, err := tx.LockSquad(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, 1, squad.Occupied())
		require.False(t, squad.HasRoom(domain.PositionGoalkeeper))
		require.True(t, squad.HasRoom(domain.PositionDefender))
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreSquadStateAndListing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	closedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.CreateSquad(ctx, testSquad("s2", 2)))
		require.NoError(t, tx.CreateSquad(ctx, testSquad("s1", 1)))
		require.NoError(t, tx.CreateCommunicationGroup(ctx, &domain.CommunicationGroup{ID: "g1", SquadID: "s1", Name: "chat"}))
		require.NoError(t, tx.UpdateSquadState(ctx, "s2", domain.SquadStateClosed, closedAt))
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.ListActiveSquads(ctx, "U12")
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "s1", active[0].ID)

		all, err := tx.ListSquads(ctx, "U12")
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, 1, all[0].Seq)
		require.NotNil(t, all[1].ClosedAt)
		require.True(t, closedAt.Equal(*all[1].ClosedAt))

		maxSeq, err := tx.MaxSquadSeq(ctx, "U12")
		require.NoError(t, err)
		require.Equal(t, 2, maxSeq)

		require.NoError(t, tx.DeleteSquad(ctx, "s1"))
		_, err = tx.GetCommunicationGroup(ctx, "s1")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreUpsertKeepsAssignment(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMember(t, store, "m1")

	assignmentID := "a1"
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetMemberAssignment(ctx, "m1", &assignmentID)
	})
	require.NoError(t, err)

	update := &domain.Member{ID: "m1", PrimaryPosition: "mid", Status: domain.MemberStatusSuspended}
	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpsertMemberProfile(ctx, update)
	})
	require.NoError(t, err)
	require.NotNil(t, update.AssignmentID)
	require.Equal(t, assignmentID, *update.AssignmentID)

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.GetMember(ctx, "m1")
		require.NoError(t, err)
		require.Equal(t, domain.MemberStatusSuspended, m.Status)
		require.Nil(t, m.BirthYear)
		require.True(t, m.Assigned())
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().WithinTx(ctx, func(context.Context, Tx) error {
		t.Fatal("unit must not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
