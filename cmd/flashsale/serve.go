package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flashsale/seckill/transport/httpapi"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP allocation endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			logStartup(rt.logger, "serve", rt.cfg)

			if rt.cfg.memoryMode {
				rt.logger.Warn("serve alone in memory mode has no materializer, use the all command")
			}

			g, gctx := errgroup.WithContext(ctx)
			startServe(gctx, g, rt)
			return g.Wait()
		},
	}
}

// runner é uma tarefa de fundo que termina junto com o ctx.
type runner interface {
	Run(ctx context.Context) error
}

// startServe agenda o servidor HTTP e suas tarefas de apoio no grupo.
func startServe(ctx context.Context, g *errgroup.Group, rt *runtime) {
	if rt.cfg.warmUpOnStart {
		n, err := rt.warmUp().Run(ctx)
		if err != nil {
			// o reconciliador cobre contadores ausentes
			rt.logger.Error("warm up at boot failed", "err", err)
		} else {
			rt.logger.Info("warm up at boot", "activities", n)
		}
	}

	rt.limiters.StartJanitor(ctx)
	if rt.activityCache != nil {
		g.Go(func() error { return rt.activityCache.Run(ctx) })
	}
	if r, ok := rt.markers.(runner); ok {
		g.Go(func() error { return r.Run(ctx) })
	}

	srv := &http.Server{
		Addr:              rt.cfg.listenAddr,
		Handler:           newHTTPHandler(rt),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		rt.logger.Info("http listening",
			"addr", rt.cfg.listenAddr,
			"rateEnabled", rt.cfg.rateEnabled,
			"rateRPS", rt.cfg.rateRPS,
			"rateBurst", rt.cfg.rateBurst,
			"concurrencyMax", rt.cfg.concurrencyMax,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func newHTTPHandler(rt *runtime) http.Handler {
	h := &httpapi.Handler{
		Engine:     rt.engine(),
		Orders:     rt.orderService(),
		Activities: rt.durable,
		Clock:      rt.clock,
		Logger:     rt.logger,
		Health:     rt.health,
	}

	var allocateMW []func(http.Handler) http.Handler
	if rt.cfg.rateEnabled {
		allocateMW = append(allocateMW, httpapi.RateLimit(httpapi.RateLimitOptions{
			Store:               rt.limiters,
			Stats:               rt.stats,
			KeyHeader:           rt.cfg.rateKeyHeader,
			TrustXForwardedFor:  rt.cfg.trustXFF,
			RetryAfter:          rt.cfg.retryAfter,
			AddRateLimitHeaders: rt.cfg.addHeaders,
		}))
	}
	allocateMW = append(allocateMW, httpapi.Concurrency(httpapi.ConcurrencyOptions{
		Max:            rt.cfg.concurrencyMax,
		AcquireTimeout: rt.cfg.concurrencyTimeout,
	}))

	return h.Routes(allocateMW...)
}
