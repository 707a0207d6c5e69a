package domain

import (
	"fmt"
	"time"
)

// SquadState enumerates lifecycle states for squads.
type SquadState string

const (
	SquadStateOpen   SquadState = "OPEN"
	SquadStateFull   SquadState = "FULL"
	SquadStateClosed SquadState = "CLOSED"
)

// RosterTemplate fixes a squad's capacity per position category.
type RosterTemplate struct {
	Total int                      `json:"total" yaml:"total"`
	Slots map[PositionCategory]int `json:"slots" yaml:"slots"`
}

// Capacity returns the number of slots for the category.
func (t RosterTemplate) Capacity(category PositionCategory) int {
	return t.Slots[category]
}

// Validate checks that every slot count is positive and sums to Total.
func (t RosterTemplate) Validate() error {
	if len(t.Slots) == 0 {
		return fmt.Errorf("roster template has no slots")
	}
	sum := 0
	for category, slots := range t.Slots {
		if !category.Valid() {
			return fmt.Errorf("unknown position category %q", category)
		}
		if slots < 0 {
			return fmt.Errorf("negative slot count for %s", category)
		}
		sum += slots
	}
	if sum == 0 {
		return fmt.Errorf("roster template has zero capacity")
	}
	if t.Total != sum {
		return fmt.Errorf("roster total %d does not match slot sum %d", t.Total, sum)
	}
	return nil
}

// Clone returns a deep copy.
func (t RosterTemplate) Clone() RosterTemplate {
	slots := make(map[PositionCategory]int, len(t.Slots))
	for k, v := range t.Slots {
		slots[k] = v
	}
	return RosterTemplate{Total: t.Total, Slots: slots}
}

// Squad is a roster instance within an age group.
type Squad struct {
	ID        string
	AgeGroup  AgeGroup
	Seq       int
	Name      string
	State     SquadState
	Template  RosterTemplate
	Occupancy map[PositionCategory]int
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Occupied returns the number of filled slots across all categories.
func (s *Squad) Occupied() int {
	total := 0
	for _, n := range s.Occupancy {
		total += n
	}
	return total
}

// HasRoom reports whether the category has a free slot.
func (s *Squad) HasRoom(category PositionCategory) bool {
	return s.Occupancy[category] < s.Template.Capacity(category)
}

// IsFull reports whether every category is at capacity.
func (s *Squad) IsFull() bool {
	for category, capacity := range s.Template.Slots {
		if s.Occupancy[category] < capacity {
			return false
		}
	}
	return true
}

// Empty reports whether the squad holds no assignments.
func (s *Squad) Empty() bool {
	return s.Occupied() == 0
}

// SquadName builds the display name for the seq-th squad of an age group.
func SquadName(ageGroup AgeGroup, seq int) string {
	return fmt.Sprintf("%s Squad %d", ageGroup, seq)
}
