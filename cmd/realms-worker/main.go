package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shadowrealms/internal/config"
	"shadowrealms/internal/ledger"
	"shadowrealms/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	st, err := store.Open(ctx, cfg.StoreConfig, false, logger)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := ledger.NewService(st, logger, ledger.Options{})

	if cfg.RunOnce {
		n, err := svc.PruneRequestKeys(ctx, cfg.KeyRetention)
		if err != nil {
			logger.Error("prune failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "pruned", n)
		return
	}

	ticker := time.NewTicker(cfg.PruneEvery)
	defer ticker.Stop()

	logger.Info("worker started", "prune_every", cfg.PruneEvery.String(), "retention", cfg.KeyRetention.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if _, err := svc.PruneRequestKeys(ctx, cfg.KeyRetention); err != nil {
				logger.Error("prune failed", "err", err)
			}
		}
	}
}
