package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type groupEnsurer interface {
	EnsureGroup(ctx context.Context) error
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the materializer that persists allocations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			logStartup(rt.logger, "worker", rt.cfg)

			g, gctx := errgroup.WithContext(ctx)
			if err := startWorker(gctx, g, rt); err != nil {
				return err
			}
			return g.Wait()
		},
	}
}

func startWorker(ctx context.Context, g *errgroup.Group, rt *runtime) error {
	if eg, ok := rt.channel.(groupEnsurer); ok {
		if err := eg.EnsureGroup(ctx); err != nil {
			return err
		}
	}

	mat := rt.materializer()
	g.Go(func() error {
		err := rt.channel.Consume(ctx, mat.Handle, mat.HandleDeadLetter)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return nil
}
