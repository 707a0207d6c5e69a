package domain

// AgeGroup is a cohort code derived from birth year, e.g. "U12".
type AgeGroup string

// PositionCategory is the coarse playing-role bucket used for slot accounting.
type PositionCategory string

const (
	PositionGoalkeeper PositionCategory = "GK"
	PositionDefender   PositionCategory = "DEF"
	PositionMidfielder PositionCategory = "MID"
	PositionForward    PositionCategory = "FWD"
)

// PositionCategories lists every category in roster order.
var PositionCategories = []PositionCategory{
	PositionGoalkeeper,
	PositionDefender,
	PositionMidfielder,
	PositionForward,
}

// Valid reports whether c is one of the closed set of categories.
func (c PositionCategory) Valid() bool {
	for _, known := range PositionCategories {
		if c == known {
			return true
		}
	}
	return false
}
