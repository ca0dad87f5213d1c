package main

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/contribution-engine/contrib"
)

type baselinesOptions struct {
	Year int
}

// earliestPayroll bounds the salary scan; first-month wages may predate the
// reference year by any amount.
var earliestPayroll = contrib.NewMonth(1990, time.January)

func newBaselinesCmd(root *rootOptions) *cobra.Command {
	var opts baselinesOptions

	cmd := &cobra.Command{
		Use:   "baselines --year <reference-year>",
		Short: "Derive employee baselines from stored salary rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Year <= 0 {
				return errors.New("--year is required")
			}

			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			records, err := store.LoadSalaries(ctx, earliestPayroll, contrib.NewMonth(opts.Year+1, time.December))
			if err != nil {
				return err
			}
			built, err := contrib.BuildBaselines(opts.Year, records)
			if err != nil {
				return err
			}

			baselines := make([]contrib.EmployeeBaseline, 0, len(built))
			for _, b := range built {
				baselines = append(baselines, b)
			}
			if err := store.SaveBaselines(ctx, baselines); err != nil {
				return err
			}
			root.logger.WithFields(logrus.Fields{
				"reference_year": opts.Year,
				"employees":      len(baselines),
			}).Info("baselines saved")
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Year, "year", 0, "reference year (the year before the policy year)")
	return cmd
}
