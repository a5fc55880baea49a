package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newAllCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run serve, worker and reconcile in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			logStartup(rt.logger, "all", rt.cfg)

			if migrate {
				if err := rt.migrate(ctx); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			if err := startWorker(gctx, g, rt); err != nil {
				return err
			}
			startReconciler(gctx, g, rt)
			startServe(gctx, g, rt)
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before starting")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
