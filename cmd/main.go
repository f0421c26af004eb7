// Command whalewatch tracks open Hyperliquid positions for a set of wallet
// addresses, records every position change in an append-only log, and serves
// both over a JSON HTTP API.
//
// Usage:
//
//	whalewatch --config config.yaml
//	whalewatch --pollinterval 30s 0xWALLET1 0xWALLET2
package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vadiminshakov/whalewatch/config"
	"github.com/vadiminshakov/whalewatch/internal/clients"
	"github.com/vadiminshakov/whalewatch/internal/poller"
	"github.com/vadiminshakov/whalewatch/internal/storage/changelog"
	"github.com/vadiminshakov/whalewatch/internal/storage/registry"
	"github.com/vadiminshakov/whalewatch/internal/storage/snapshots"
	"github.com/vadiminshakov/whalewatch/internal/web"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshotStore, err := snapshots.NewStore(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		logger.Fatal("open snapshot store", zap.Error(err))
	}
	defer snapshotStore.Close()

	changeLog, err := changelog.NewWALStore(filepath.Join(cfg.DataDir, "changes"))
	if err != nil {
		logger.Fatal("open change log", zap.Error(err))
	}
	defer changeLog.Close()

	wallets, err := registry.NewWALStore(filepath.Join(cfg.DataDir, "wallets"))
	if err != nil {
		logger.Fatal("open wallet registry", zap.Error(err))
	}
	defer wallets.Close()

	for _, wallet := range cfg.Wallets {
		if err := wallets.Add(wallet); err != nil {
			logger.Fatal("seed tracked wallet", zap.String("wallet", wallet), zap.Error(err))
		}
	}

	client := clients.NewHyperliquidClient(ctx, cfg.APIURL)

	p := poller.New(poller.Config{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Concurrency:  cfg.Concurrency,
	}, client, wallets, snapshotStore, changeLog, logger)
	p.Start(ctx)

	server := web.NewServer(cfg.ListenAddr, changeLog, snapshotStore, wallets, p, logger)
	logger.Info("serving API", zap.String("addr", cfg.ListenAddr))
	if err := server.Start(ctx); err != nil {
		logger.Error("web server failed", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		logger.Error("poller shutdown", zap.Error(err))
	}
}
