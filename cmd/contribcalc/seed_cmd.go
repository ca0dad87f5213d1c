package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/contribution-engine/contrib"
	"github.com/warp/contribution-engine/factory"
)

type seedOptions struct {
	Supersede bool
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Publish policies and load salary rows from a YAML or JSON seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := factory.NewSeedFactory().LoadFile(args[0])
			if err != nil {
				return err
			}

			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			for _, rule := range seed.Policies {
				log := root.logger.WithFields(logrus.Fields{"city": rule.City, "period": rule.Period().String()})
				if opts.Supersede {
					saved, err := store.SupersedePolicy(ctx, rule)
					if err == nil {
						log.WithField("revision", saved.Revision).Warn("policy superseded, recompute affected results")
						continue
					}
					if !errors.Is(err, contrib.ErrPolicyNotFound) {
						return fmt.Errorf("supersede policy %s %s: %w", rule.City, rule.Period(), err)
					}
				}
				if err := store.SavePolicy(ctx, rule); err != nil {
					return fmt.Errorf("publish policy %s %s: %w", rule.City, rule.Period(), err)
				}
				log.Info("policy published")
			}

			if err := store.SaveSalaries(ctx, seed.Salaries); err != nil {
				return err
			}
			root.logger.WithFields(logrus.Fields{
				"policies": len(seed.Policies),
				"salaries": len(seed.Salaries),
			}).Info("seed loaded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Supersede, "supersede", false, "replace already published policies and bump their revision")
	return cmd
}
