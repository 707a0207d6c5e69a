package cohort

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/domain"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

func intPtr(v int) *int { return &v }

func TestAgeGroupFor(t *testing.T) {
	cases := []struct {
		name      string
		season    int
		bucket    int
		birthYear int
		want      domain.AgeGroup
	}{
		{name: "single year bucket", season: 2026, bucket: 1, birthYear: 2015, want: "U12"},
		{name: "same year clamps to age one", season: 2026, bucket: 1, birthYear: 2026, want: "U2"},
		{name: "two year bucket lower edge", season: 2026, bucket: 2, birthYear: 2016, want: "U12"},
		{name: "two year bucket upper edge", season: 2026, bucket: 2, birthYear: 2015, want: "U12"},
		{name: "two year bucket next band", season: 2026, bucket: 2, birthYear: 2014, want: "U14"},
		{name: "zero bucket treated as one", season: 2026, bucket: 0, birthYear: 2016, want: "U11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Resolver{SeasonYear: tc.season, BucketYears: tc.bucket}
			got, err := r.AgeGroupFor(tc.birthYear)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAgeGroupForRejectsFutureBirthYear(t *testing.T) {
	r := NewResolver(2026, 1)
	_, err := r.AgeGroupFor(2030)
	require.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestResolve(t *testing.T) {
	r := NewResolver(2026, 1)

	t.Run("primary and secondary", func(t *testing.T) {
		c, err := r.Resolve(intPtr(2014), "Keeper", "cb")
		require.NoError(t, err)
		require.Equal(t, domain.AgeGroup("U13"), c.AgeGroup)
		require.Equal(t, domain.PositionGoalkeeper, c.Primary)
		require.NotNil(t, c.Secondary)
		require.Equal(t, domain.PositionDefender, *c.Secondary)
		require.Equal(t, []domain.PositionCategory{domain.PositionGoalkeeper, domain.PositionDefender}, c.Categories())
	})

	t.Run("unknown primary falls back to secondary", func(t *testing.T) {
		c, err := r.Resolve(intPtr(2014), "libero-ish", "Striker")
		require.NoError(t, err)
		require.Equal(t, domain.PositionForward, c.Primary)
		require.Nil(t, c.Secondary)
	})

	t.Run("duplicate categories collapse", func(t *testing.T) {
		c, err := r.Resolve(intPtr(2014), "cm", "CAM")
		require.NoError(t, err)
		require.Equal(t, []domain.PositionCategory{domain.PositionMidfielder}, c.Categories())
	})

	t.Run("missing birth year", func(t *testing.T) {
		_, err := r.Resolve(nil, "gk", "")
		require.True(t, errors.Is(err, apperrors.ErrValidation))
	})

	t.Run("no recognised position", func(t *testing.T) {
		_, err := r.Resolve(intPtr(2014), "coach", "")
		require.True(t, errors.Is(err, apperrors.ErrValidation))
	})
}

func TestCategoryNormalisesInput(t *testing.T) {
	for input, want := range map[string]domain.PositionCategory{
		" GK ":      domain.PositionGoalkeeper,
		"full-back": domain.PositionDefender,
		"Mid_Field": domain.PositionMidfielder,
		"left wing": "",
		"RW":        domain.PositionForward,
	} {
		got, ok := Category(input)
		require.Equal(t, want != "", ok, input)
		require.Equal(t, want, got, input)
	}
}
