package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shadowrealms/internal/api"
	"shadowrealms/internal/catalog"
	"shadowrealms/internal/config"
	"shadowrealms/internal/journal"
	"shadowrealms/internal/ledger"
	"shadowrealms/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	st, err := store.Open(ctx, cfg.StoreConfig, cfg.AutoMigrate, logger)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}

	seed := cfg.ChanceSeed
	if seed == 0 {
		if seed, err = ledger.NewSeed(); err != nil {
			logger.Error("chance seed failed", "err", err)
			os.Exit(1)
		}
	}

	feed := api.NewFeed(logger)
	sinks := []ledger.EventSink{feed}
	if cfg.JournalDir != "" {
		jw := journal.NewWriter(cfg.JournalDir)
		defer func() {
			if err := jw.Close(); err != nil {
				logger.Error("journal close failed", "err", err)
			}
		}()
		sinks = append(sinks, jw)
	}

	svc := ledger.NewService(st, logger, ledger.Options{
		Catalog:   cat,
		Chance:    ledger.NewChance(seed),
		Sinks:     sinks,
		OpTimeout: cfg.OpTimeout,
	})
	server, err := api.New(cfg, logger, svc, feed)
	if err != nil {
		logger.Error("api init failed", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("realms api listening", "addr", cfg.Addr, "store", cfg.Kind, "journal", cfg.JournalDir != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
