package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flashsale",
		Short: "Flash sale allocation service",
		Long: `flashsale decide em tempo real quem leva cada unidade de uma venda relâmpago.

O caminho rápido (serve) responde pelo contador em Redis e publica a alocação
no stream; o materializador (worker) grava estoque e pedido no Postgres; o
reconciliador (reconcile) corrige o contador a partir do estoque durável.
Toda a configuração vem de variáveis de ambiente.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newReconcileCmd(),
		newWarmUpCmd(),
		newMigrateCmd(),
		newAllCmd(),
	)
	return root
}

// bootstrap lê a config, cria o logger e monta as dependências.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(os.Stderr, cfg.logLevel)

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return nil, err
	}
	return rt, nil
}

func logStartup(logger *slog.Logger, component string, cfg config) {
	logger.Info("starting",
		"component", component,
		"memoryMode", cfg.memoryMode,
		"redisAddr", cfg.redisAddr,
		"stream", cfg.streamName,
		"consumer", cfg.consumerName,
	)
}
