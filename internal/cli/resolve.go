package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/squad-service/internal/cohort"
)

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func newResolveCmd() *cobra.Command {
	var (
		birthYear int
		primary   string
		secondary string
		season    int
		bucket    int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the age group and position categories a member would be placed under",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if season == 0 {
				season = cfg.Cohort.SeasonYear
			}
			if bucket == 0 {
				bucket = cfg.Cohort.BucketYears
			}

			var year *int
			if cmd.Flags().Changed("birth-year") {
				year = &birthYear
			}
			c, err := cohort.NewResolver(season, bucket).Resolve(year, primary, secondary)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "age_group: %s\n", c.AgeGroup)
			_, _ = fmt.Fprintf(out, "primary: %s\n", c.Primary)
			if c.Secondary != nil {
				_, _ = fmt.Fprintf(out, "secondary: %s\n", *c.Secondary)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&birthYear, "birth-year", 0, "Member birth year")
	cmd.Flags().StringVar(&primary, "primary", "", "Primary position (e.g. goalkeeper, cb, striker)")
	cmd.Flags().StringVar(&secondary, "secondary", "", "Secondary position")
	cmd.Flags().IntVar(&season, "season", 0, "Season year (default: COHORT_SEASON_YEAR)")
	cmd.Flags().IntVar(&bucket, "bucket", 0, "Years per age group (default: COHORT_BUCKET_YEARS)")
	return cmd
}
