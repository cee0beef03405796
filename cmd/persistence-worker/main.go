// Command persistence-worker drains stream:fills, stream:orders, and
// stream:deposits into the Postgres ledger (C6), upserting idempotently
// and periodically snapshotting balances.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/config"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/ledger"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/logging"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/persistence"
)

func main() {
	log, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})

	led, err := ledger.Open(cfg.Ledger.DSN, cfg.Ledger.MaxOpenConns, cfg.Ledger.MaxIdleConns, cfg.Ledger.ConnMaxLifetime)
	if err != nil {
		log.Fatal("ledger open failed", zap.Error(err))
	}

	titles, err := persistence.NewTitleCache(cfg.Persistence.TitleCacheSize, cfg.Persistence.TitleCacheTTL, led.MarketTitle)
	if err != nil {
		log.Fatal("title cache init failed", zap.Error(err))
	}

	// No in-process websocket hub here: this is a standalone worker
	// process, so live fill/order notifications are left to the
	// matcher process, which holds the actual client connections.
	worker := persistence.New(rdb, led, titles, nil, persistence.Config{
		Group:          cfg.Streams.Group,
		Consumer:       cfg.Streams.Consumer,
		ClaimIdle:      cfg.Streams.ClaimIdle,
		ReadCount:      cfg.Streams.ReadCount,
		ReadBlock:      cfg.Streams.ReadBlock,
		SnapshotEveryN: cfg.Persistence.SnapshotEveryN,
		SnapshotBatch:  cfg.Persistence.SnapshotBatch,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("persistence worker starting", zap.String("consumer", cfg.Streams.Consumer))
	if err := worker.Run(ctx); err != nil {
		log.Fatal("persistence worker failed", zap.Error(err))
	}
}
