package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
)

type policyView struct {
	MaxOpenSquads  int    `yaml:"max_open_squads"`
	MinFillPercent int    `yaml:"min_fill_percent"`
	Roster         string `yaml:"roster"`
	RosterTotal    int    `yaml:"roster_total"`
}

type policyDoc struct {
	Defaults policyView                     `yaml:"defaults"`
	Groups   map[domain.AgeGroup]policyView `yaml:"groups,omitempty"`
}

func viewOf(p policy.Policy) policyView {
	return policyView{
		MaxOpenSquads:  p.MaxOpenSquads,
		MinFillPercent: p.MinFillToOpenNextPercent,
		Roster:         policy.FormatRoster(p.Roster),
		RosterTotal:    p.Roster.Total,
	}
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show the squad policy resolved from environment and policy file",
	}
	cmd.AddCommand(newPolicyShowCmd())
	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [age-group]",
		Short: "Print the effective policy as YAML, for every group or one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := policy.Load(cfg.Policy)
			if err != nil {
				return err
			}

			var out any
			if len(args) == 1 {
				group := domain.AgeGroup(normalize(args[0]))
				out = map[domain.AgeGroup]policyView{group: viewOf(store.Get(group))}
			} else {
				doc := policyDoc{Defaults: viewOf(store.Default())}
				if groups := store.Groups(); len(groups) > 0 {
					doc.Groups = make(map[domain.AgeGroup]policyView, len(groups))
					for _, g := range groups {
						doc.Groups[g] = viewOf(store.Get(g))
					}
				}
				out = doc
			}

			raw, err := yaml.Marshal(out)
			if err != nil {
				return fmt.Errorf("encode policy: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}
