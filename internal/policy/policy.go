// Package policy holds the per-age-group capacity rules. A Store is built once
// at startup and is read-only afterwards.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/squad-service/internal/config"
	"github.com/spec-kit/squad-service/internal/domain"
)

// Policy is the capacity rule set for one age group.
type Policy struct {
	MaxOpenSquads            int                   `json:"max_open_squads" yaml:"max_open_squads"`
	MinFillToOpenNextPercent int                   `json:"min_fill_to_open_next_percent" yaml:"min_fill_percent"`
	Roster                   domain.RosterTemplate `json:"roster" yaml:"roster"`
}

// Validate checks the invariants every policy must satisfy.
func (p Policy) Validate() error {
	if p.MaxOpenSquads < 1 {
		return fmt.Errorf("max open squads must be at least 1, got %d", p.MaxOpenSquads)
	}
	if p.MinFillToOpenNextPercent < 0 || p.MinFillToOpenNextPercent > 100 {
		return fmt.Errorf("min fill percent must be within 0..100, got %d", p.MinFillToOpenNextPercent)
	}
	return p.Roster.Validate()
}

func (p Policy) clone() Policy {
	p.Roster = p.Roster.Clone()
	return p
}

// Store resolves the policy of an age group, falling back to the default.
type Store struct {
	defaults Policy
	groups   map[domain.AgeGroup]Policy
}

// Get returns the effective policy. The returned value is a copy.
func (s *Store) Get(ageGroup domain.AgeGroup) Policy {
	if p, ok := s.groups[ageGroup]; ok {
		return p.clone()
	}
	return s.defaults.clone()
}

// Default returns the policy applied to age groups without an override.
func (s *Store) Default() Policy {
	return s.defaults.clone()
}

// Groups lists age groups with explicit overrides, sorted.
func (s *Store) Groups() []domain.AgeGroup {
	out := make([]domain.AgeGroup, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a Store from explicit values. Every policy is validated.
func New(defaults Policy, groups map[domain.AgeGroup]Policy) (*Store, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	s := &Store{defaults: defaults.clone(), groups: make(map[domain.AgeGroup]Policy, len(groups))}
	for g, p := range groups {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy for %s: %w", g, err)
		}
		s.groups[g] = p.clone()
	}
	return s, nil
}

// fileEntry mirrors one YAML block; absent fields inherit.
type fileEntry struct {
	MaxOpenSquads  *int           `yaml:"max_open_squads"`
	MinFillPercent *int           `yaml:"min_fill_percent"`
	Roster         map[string]int `yaml:"roster"`
}

type fileDoc struct {
	Defaults *fileEntry           `yaml:"defaults"`
	Groups   map[string]fileEntry `yaml:"groups"`
}

// Load layers the policy sources: built-in env defaults, then the YAML file,
// then per-group environment overrides.
func Load(cfg config.PolicyConfig) (*Store, error) {
	roster, err := ParseRoster(cfg.Roster)
	if err != nil {
		return nil, fmt.Errorf("POLICY_ROSTER: %w", err)
	}
	defaults := Policy{
		MaxOpenSquads:            cfg.MaxOpenSquads,
		MinFillToOpenNextPercent: cfg.MinFillPercent,
		Roster:                   roster,
	}
	groups := map[domain.AgeGroup]Policy{}

	if cfg.File != "" {
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		var doc fileDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse policy file: %w", err)
		}
		if doc.Defaults != nil {
			if defaults, err = doc.Defaults.apply(defaults); err != nil {
				return nil, fmt.Errorf("policy file defaults: %w", err)
			}
		}
		for name, entry := range doc.Groups {
			p, err := entry.apply(defaults)
			if err != nil {
				return nil, fmt.Errorf("policy file group %s: %w", name, err)
			}
			groups[normalizeGroup(name)] = p
		}
	}

	for name, override := range cfg.GroupOverrides {
		group := normalizeGroup(name)
		p, ok := groups[group]
		if !ok {
			p = defaults.clone()
		}
		if override.MaxOpenSquads != nil {
			p.MaxOpenSquads = *override.MaxOpenSquads
		}
		if override.MinFillPercent != nil {
			p.MinFillToOpenNextPercent = *override.MinFillPercent
		}
		if override.Roster != "" {
			r, err := ParseRoster(override.Roster)
			if err != nil {
				return nil, fmt.Errorf("POLICY_%s_ROSTER: %w", name, err)
			}
			p.Roster = r
		}
		groups[group] = p
	}

	return New(defaults, groups)
}

func (e fileEntry) apply(base Policy) (Policy, error) {
	p := base.clone()
	if e.MaxOpenSquads != nil {
		p.MaxOpenSquads = *e.MaxOpenSquads
	}
	if e.MinFillPercent != nil {
		p.MinFillToOpenNextPercent = *e.MinFillPercent
	}
	if len(e.Roster) > 0 {
		slots := make(map[domain.PositionCategory]int, len(e.Roster))
		total := 0
		for k, v := range e.Roster {
			c := domain.PositionCategory(strings.ToUpper(strings.TrimSpace(k)))
			if !c.Valid() {
				return Policy{}, fmt.Errorf("unknown position category %q", k)
			}
			slots[c] = v
			total += v
		}
		p.Roster = domain.RosterTemplate{Total: total, Slots: slots}
	}
	return p, nil
}

// ParseRoster reads "GK:1,DEF:3,MID:2,FWD:2" into a template whose total is
// the slot sum.
func ParseRoster(spec string) (domain.RosterTemplate, error) {
	slots := map[domain.PositionCategory]int{}
	total := 0
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count, ok := strings.Cut(part, ":")
		if !ok {
			return domain.RosterTemplate{}, fmt.Errorf("malformed roster entry %q", part)
		}
		c := domain.PositionCategory(strings.ToUpper(strings.TrimSpace(name)))
		if !c.Valid() {
			return domain.RosterTemplate{}, fmt.Errorf("unknown position category %q", name)
		}
		if _, dup := slots[c]; dup {
			return domain.RosterTemplate{}, fmt.Errorf("duplicate roster entry for %s", c)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n < 0 {
			return domain.RosterTemplate{}, fmt.Errorf("invalid slot count %q for %s", count, c)
		}
		slots[c] = n
		total += n
	}
	t := domain.RosterTemplate{Total: total, Slots: slots}
	if err := t.Validate(); err != nil {
		return domain.RosterTemplate{}, err
	}
	return t, nil
}

// FormatRoster renders a template in ParseRoster syntax, in roster order.
func FormatRoster(t domain.RosterTemplate) string {
	parts := make([]string, 0, len(t.Slots))
	for _, c := range domain.PositionCategories {
		if n, ok := t.Slots[c]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d", c, n))
		}
	}
	return strings.Join(parts, ",")
}

func normalizeGroup(name string) domain.AgeGroup {
	return domain.AgeGroup(strings.ToUpper(strings.TrimSpace(name)))
}
