package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSquadIsFull(t *testing.T) {
	template := RosterTemplate{Total: 4, Slots: map[PositionCategory]int{
		PositionGoalkeeper: 1,
		PositionDefender:   2,
		PositionForward:    1,
		PositionMidfielder: 0,
	}}

	cases := []struct {
		name      string
		occupancy map[PositionCategory]int
		want      bool
	}{
		{name: "empty", occupancy: nil, want: false},
		{name: "one category short", occupancy: map[PositionCategory]int{PositionGoalkeeper: 1, PositionDefender: 1, PositionForward: 1}, want: false},
		{name: "every slot taken", occupancy: map[PositionCategory]int{PositionGoalkeeper: 1, PositionDefender: 2, PositionForward: 1}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Squad{Template: template, Occupancy: tc.occupancy}
			require.Equal(t, tc.want, s.IsFull())
			require.Equal(t, tc.want, s.Occupied() == template.Total)
		})
	}
}

func TestSquadHasRoomIgnoresZeroCapacityCategory(t *testing.T) {
	s := &Squad{Template: RosterTemplate{Total: 1, Slots: map[PositionCategory]int{
		PositionGoalkeeper: 1,
		PositionMidfielder: 0,
	}}}
	require.True(t, s.HasRoom(PositionGoalkeeper))
	require.False(t, s.HasRoom(PositionMidfielder))
	require.False(t, s.HasRoom(PositionForward))
}
