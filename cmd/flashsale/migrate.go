package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.migrate(ctx); err != nil {
				return err
			}
			rt.logger.Info("migrations applied")
			return nil
		},
	}
}
