// Command matcher runs the order-intake HTTP/WebSocket server (C1): it
// validates and signature-checks incoming orders, matches them inline
// against the resting book, and publishes fills/order events onto the
// shared streams for the settlement and persistence workers to pick up.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/api"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/config"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/ledger"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/logging"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/market"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/onchain"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/realtime"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/settlement"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/streams"
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

	programID, err := parseProgramID(cfg.OnChain.ProgramID)
	if err != nil {
		log.Fatal("invalid on-chain program id", zap.Error(err))
	}
	rpcClient := rpc.New(cfg.OnChain.RPCEndpoint)
	oracle := onchain.New(rpcClient, programID, "")

	store := obstore.NewRedisStore(rdb)
	if err := store.LoadScripts(context.Background()); err != nil {
		log.Fatal("obstore script load failed", zap.Error(err))
	}
	engine := matching.New(store, time.Now)
	queue := settlement.NewRedisQueue(rdb)
	orderStream := streams.New(rdb, streams.Orders)
	fillStream := streams.New(rdb, streams.Fills)

	registry := market.NewRegistry()

	issuer := realtime.NewCredentialIssuer([]byte(cfg.Realtime.AuthHMACSecret))
	hub := realtime.NewHub(issuer, realtime.Limits{
		MaxConnections:          cfg.Realtime.MaxConnections,
		MaxPerIP:                cfg.Realtime.MaxConnectionsPerIP,
		MaxSubscriptionsPerConn: cfg.Realtime.MaxSubscriptionsPerConn,
	}, log)

	srv := api.New(store, engine, oracle, queue, orderStream, fillStream, registry, hub, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registry.Refresh(ctx, led); err != nil {
		log.Warn("initial market registry refresh failed", zap.Error(err))
	}
	go refreshMarketsPeriodically(ctx, registry, led, log)

	log.Info("matcher starting", zap.String("addr", cfg.HTTP.Addr))
	if err := srv.Start(ctx, cfg.HTTP.Addr); err != nil {
		log.Fatal("matcher failed", zap.Error(err))
	}
}

func parseProgramID(s string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(s)
}

// refreshMarketsPeriodically keeps the registry in sync with the
// markets table, per its own doc comment ("meant to run once at
// startup and then on a periodic timer").
func refreshMarketsPeriodically(ctx context.Context, registry *market.Registry, loader market.Loader, log *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Refresh(ctx, loader); err != nil {
				log.Warn("market registry refresh failed", zap.Error(err))
			}
		}
	}
}
