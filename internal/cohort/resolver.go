// Package cohort maps a member profile to the age group and position
// categories used for squad placement.
package cohort

import (
	"fmt"
	"strings"

	"github.com/spec-kit/squad-service/internal/domain"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// Cohort is the placement key of one member.
type Cohort struct {
	AgeGroup  domain.AgeGroup
	Primary   domain.PositionCategory
	Secondary *domain.PositionCategory
}

// Categories returns the categories to try, primary first, without duplicates.
func (c Cohort) Categories() []domain.PositionCategory {
	out := []domain.PositionCategory{c.Primary}
	if c.Secondary != nil && *c.Secondary != c.Primary {
		out = append(out, *c.Secondary)
	}
	return out
}

// Resolver buckets birth years into age groups relative to a season year.
type Resolver struct {
	SeasonYear  int
	BucketYears int
}

// NewResolver builds a resolver; a bucket width below 1 is treated as 1.
func NewResolver(seasonYear, bucketYears int) *Resolver {
	if bucketYears < 1 {
		bucketYears = 1
	}
	return &Resolver{SeasonYear: seasonYear, BucketYears: bucketYears}
}

// AgeGroupFor returns the code for a birth year, e.g. "U12".
func (r *Resolver) AgeGroupFor(birthYear int) (domain.AgeGroup, error) {
	if birthYear <= 0 || birthYear > r.SeasonYear {
		return "", apperrors.NewValidationError("birth year out of range", map[string]any{
			"birth_year":  birthYear,
			"season_year": r.SeasonYear,
		})
	}
	bucket := r.BucketYears
	if bucket < 1 {
		bucket = 1
	}
	age := r.SeasonYear - birthYear
	if age < 1 {
		age = 1
	}
	upper := (age/bucket + 1) * bucket
	return domain.AgeGroup(fmt.Sprintf("U%d", upper)), nil
}

// Resolve derives the cohort for a member profile. An unmappable primary
// position falls back to the secondary one.
func (r *Resolver) Resolve(birthYear *int, primary, secondary string) (Cohort, error) {
	if birthYear == nil {
		return Cohort{}, apperrors.NewValidationError("birth year is required", nil)
	}
	group, err := r.AgeGroupFor(*birthYear)
	if err != nil {
		return Cohort{}, err
	}

	p, pok := Category(primary)
	s, sok := Category(secondary)
	switch {
	case pok && sok:
		return Cohort{AgeGroup: group, Primary: p, Secondary: &s}, nil
	case pok:
		return Cohort{AgeGroup: group, Primary: p}, nil
	case sok:
		return Cohort{AgeGroup: group, Primary: s}, nil
	default:
		return Cohort{}, apperrors.NewValidationError("no recognised playing position", map[string]any{
			"primary_position":   primary,
			"secondary_position": secondary,
		})
	}
}

var aliases = map[string]domain.PositionCategory{
	"gk":         domain.PositionGoalkeeper,
	"goalkeeper": domain.PositionGoalkeeper,
	"goalie":     domain.PositionGoalkeeper,
	"keeper":     domain.PositionGoalkeeper,

	"def":      domain.PositionDefender,
	"defender": domain.PositionDefender,
	"defence":  domain.PositionDefender,
	"defense":  domain.PositionDefender,
	"cb":       domain.PositionDefender,
	"lb":       domain.PositionDefender,
	"rb":       domain.PositionDefender,
	"fullback": domain.PositionDefender,
	"sweeper":  domain.PositionDefender,

	"mid":        domain.PositionMidfielder,
	"midfield":   domain.PositionMidfielder,
	"midfielder": domain.PositionMidfielder,
	"cm":         domain.PositionMidfielder,
	"cdm":        domain.PositionMidfielder,
	"cam":        domain.PositionMidfielder,
	"lm":         domain.PositionMidfielder,
	"rm":         domain.PositionMidfielder,

	"fwd":      domain.PositionForward,
	"forward":  domain.PositionForward,
	"striker":  domain.PositionForward,
	"st":       domain.PositionForward,
	"cf":       domain.PositionForward,
	"winger":   domain.PositionForward,
	"lw":       domain.PositionForward,
	"rw":       domain.PositionForward,
	"attacker": domain.PositionForward,
}

// Category maps a free-text position to its category.
func Category(position string) (domain.PositionCategory, bool) {
	key := strings.ToLower(strings.TrimSpace(position))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	if key == "" {
		return "", false
	}
	c, ok := aliases[key]
	return c, ok
}
