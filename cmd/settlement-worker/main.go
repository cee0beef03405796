// Command settlement-worker drains the settlement queue and submits
// batched settle_match transactions on-chain (C5), retrying with
// backoff and consulting the order-status oracle before each retry to
// detect a submission that actually landed despite a client-side
// confirmation timeout.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/config"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/logging"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/onchain"
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
	store := obstore.NewRedisStore(rdb)
	if err := store.LoadScripts(context.Background()); err != nil {
		log.Fatal("obstore script load failed", zap.Error(err))
	}
	queue := settlement.NewRedisQueue(rdb)
	fills := streams.New(rdb, streams.Fills)

	programID, err := solana.PublicKeyFromBase58(cfg.OnChain.ProgramID)
	if err != nil {
		log.Fatal("invalid on-chain program id", zap.Error(err))
	}
	operatorKey, err := loadOperatorKey(cfg.OnChain.OperatorKeyPath)
	if err != nil {
		log.Fatal("operator key load failed", zap.Error(err))
	}

	rpcClient := rpc.New(cfg.OnChain.RPCEndpoint)
	submitter := settlement.NewSolanaSubmitter(rpcClient, settlement.SolanaConfig{
		ProgramID:   programID,
		OperatorKey: operatorKey,
	})
	oracle := onchain.New(rpcClient, programID, "")

	worker := settlement.New(queue, store, submitter, fills, oracle, settlement.Config{
		Consumer:      cfg.Streams.Consumer,
		BaseBackoff:   cfg.Settlement.BaseBackoff,
		MaxAttempts:   cfg.Settlement.MaxAttempts,
		SubmitTimeout: cfg.Settlement.SubmitTimeout,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("settlement worker starting", zap.String("consumer", cfg.Streams.Consumer))
	if err := worker.Run(ctx); err != nil {
		log.Fatal("settlement worker failed", zap.Error(err))
	}
}

// loadOperatorKey reads a solana-keygen-style JSON keypair file: a
// byte array of the 64-byte ed25519 secret key.
func loadOperatorKey(path string) (solana.PrivateKey, error) {
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}
