package main

import (
	"github.com/spf13/cobra"
)

func newWarmUpCmd() *cobra.Command {
	var activityID int64
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Seed fast counters from durable stock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			w := rt.warmUp()
			if activityID > 0 {
				if err := w.Activity(ctx, activityID); err != nil {
					return err
				}
				rt.logger.Info("warm up done", "activity", activityID)
				return nil
			}

			n, err := w.Run(ctx)
			if err != nil {
				return err
			}
			rt.logger.Info("warm up done", "activities", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&activityID, "activity", 0, "warm up a single activity")
	return cmd
}
