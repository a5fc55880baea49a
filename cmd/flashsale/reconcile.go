package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newReconcileCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Correct fast counters from durable stock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if once {
				report, err := rt.reconciler().RunOnce(ctx)
				if err != nil {
					return err
				}
				rt.logger.Info("reconcile done",
					"checked", report.Checked,
					"corrected", report.Corrected,
					"skipped", report.Skipped,
				)
				return nil
			}

			logStartup(rt.logger, "reconcile", rt.cfg)
			g, gctx := errgroup.WithContext(ctx)
			startReconciler(gctx, g, rt)
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func startReconciler(ctx context.Context, g *errgroup.Group, rt *runtime) {
	rec := rt.reconciler()
	g.Go(func() error { return rec.Run(ctx) })
}
