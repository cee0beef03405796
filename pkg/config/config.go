// Package config loads this module's runtime configuration, adapted
// from the teacher's params.LoadFromEnv two-layer pattern (a local
// .env file preloaded via godotenv, then environment variables take
// precedence) and generalized from one flat struct into a block per
// subsystem.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache holds the Redis connection used by obstore and streams.
type Cache struct {
	Addr     string
	Password string
	DB       int
}

// Ledger holds the Postgres DSN used by pkg/ledger.
type Ledger struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OnChain holds the Solana RPC/program settings shared by the
// settlement worker and the order-status oracle.
type OnChain struct {
	RPCEndpoint     string
	ProgramID       string
	OperatorKeyPath string
	ConnectTimeout  time.Duration
}

// Streams holds the consumer-group identity this process reads with.
type Streams struct {
	Group          string
	Consumer       string
	ClaimIdle      time.Duration
	ReadCount      int64
	ReadBlock      time.Duration
}

// Settlement holds the settlement worker's retry tuning.
type Settlement struct {
	BaseBackoff    time.Duration
	MaxAttempts    int
	SubmitTimeout  time.Duration
	ShutdownGrace  time.Duration
}

// Persistence holds the persistence worker's snapshot cadence.
type Persistence struct {
	SnapshotEveryN   int
	SnapshotBatch    int
	TitleCacheSize   int
	TitleCacheTTL    time.Duration
}

// HTTP holds the intake API's listen address and CORS origins.
type HTTP struct {
	Addr           string
	AllowedOrigins []string
}

// Realtime holds the WebSocket fanout's connection limits.
type Realtime struct {
	MaxConnections       int
	MaxConnectionsPerIP  int
	MaxSubscriptionsPerConn int
	AuthHMACSecret       string
}

// Config is the top-level configuration this module reads at startup.
type Config struct {
	Cache       Cache
	Ledger      Ledger
	OnChain     OnChain
	Streams     Streams
	Settlement  Settlement
	Persistence Persistence
	HTTP        HTTP
	Realtime    Realtime
}

// Load preloads envPath (if present) via godotenv, then builds a
// viper reader bound to the process environment with defaults for
// every field, exactly as the teacher's LoadFromEnv does for its
// single Config struct.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			// A missing .env file is not fatal — the teacher's
			// LoadFromEnv treats process env vars as the baseline too.
			_ = err
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Cache: Cache{
			Addr:     v.GetString("CACHE_ADDR"),
			Password: v.GetString("CACHE_PASSWORD"),
			DB:       v.GetInt("CACHE_DB"),
		},
		Ledger: Ledger{
			DSN:             v.GetString("LEDGER_DSN"),
			MaxOpenConns:    v.GetInt("LEDGER_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("LEDGER_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("LEDGER_CONN_MAX_LIFETIME"),
		},
		OnChain: OnChain{
			RPCEndpoint:     v.GetString("ONCHAIN_RPC_ENDPOINT"),
			ProgramID:       v.GetString("ONCHAIN_PROGRAM_ID"),
			OperatorKeyPath: v.GetString("ONCHAIN_OPERATOR_KEY_PATH"),
			ConnectTimeout:  v.GetDuration("ONCHAIN_CONNECT_TIMEOUT"),
		},
		Streams: Streams{
			Group:     v.GetString("STREAMS_GROUP"),
			Consumer:  v.GetString("STREAMS_CONSUMER"),
			ClaimIdle: v.GetDuration("STREAMS_CLAIM_IDLE"),
			ReadCount: v.GetInt64("STREAMS_READ_COUNT"),
			ReadBlock: v.GetDuration("STREAMS_READ_BLOCK"),
		},
		Settlement: Settlement{
			BaseBackoff:   v.GetDuration("SETTLEMENT_BASE_BACKOFF"),
			MaxAttempts:   v.GetInt("SETTLEMENT_MAX_ATTEMPTS"),
			SubmitTimeout: v.GetDuration("SETTLEMENT_SUBMIT_TIMEOUT"),
			ShutdownGrace: v.GetDuration("SETTLEMENT_SHUTDOWN_GRACE"),
		},
		Persistence: Persistence{
			SnapshotEveryN: v.GetInt("PERSISTENCE_SNAPSHOT_EVERY_N"),
			SnapshotBatch:  v.GetInt("PERSISTENCE_SNAPSHOT_BATCH"),
			TitleCacheSize: v.GetInt("PERSISTENCE_TITLE_CACHE_SIZE"),
			TitleCacheTTL:  v.GetDuration("PERSISTENCE_TITLE_CACHE_TTL"),
		},
		HTTP: HTTP{
			Addr:           v.GetString("HTTP_ADDR"),
			AllowedOrigins: v.GetStringSlice("HTTP_ALLOWED_ORIGINS"),
		},
		Realtime: Realtime{
			MaxConnections:          v.GetInt("REALTIME_MAX_CONNECTIONS"),
			MaxConnectionsPerIP:     v.GetInt("REALTIME_MAX_CONNECTIONS_PER_IP"),
			MaxSubscriptionsPerConn: v.GetInt("REALTIME_MAX_SUBSCRIPTIONS_PER_CONN"),
			AuthHMACSecret:          v.GetString("REALTIME_AUTH_HMAC_SECRET"),
		},
	}

	if cfg.Ledger.DSN == "" {
		return nil, fmt.Errorf("config: LEDGER_DSN is required")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CACHE_ADDR", "localhost:6379")
	v.SetDefault("CACHE_DB", 0)

	v.SetDefault("LEDGER_MAX_OPEN_CONNS", 10)
	v.SetDefault("LEDGER_MAX_IDLE_CONNS", 5)
	v.SetDefault("LEDGER_CONN_MAX_LIFETIME", 30*time.Minute)

	v.SetDefault("ONCHAIN_RPC_ENDPOINT", "https://api.devnet.solana.com")
	v.SetDefault("ONCHAIN_CONNECT_TIMEOUT", 5*time.Second)

	v.SetDefault("STREAMS_GROUP", "catallaxyz")
	v.SetDefault("STREAMS_CONSUMER", "worker-1")
	v.SetDefault("STREAMS_CLAIM_IDLE", 60*time.Second)
	v.SetDefault("STREAMS_READ_COUNT", int64(100))
	v.SetDefault("STREAMS_READ_BLOCK", 5*time.Second)

	v.SetDefault("SETTLEMENT_BASE_BACKOFF", 2*time.Second)
	v.SetDefault("SETTLEMENT_MAX_ATTEMPTS", 3)
	v.SetDefault("SETTLEMENT_SUBMIT_TIMEOUT", 60*time.Second)
	v.SetDefault("SETTLEMENT_SHUTDOWN_GRACE", 10*time.Second)

	v.SetDefault("PERSISTENCE_SNAPSHOT_EVERY_N", 60)
	v.SetDefault("PERSISTENCE_SNAPSHOT_BATCH", 50)
	v.SetDefault("PERSISTENCE_TITLE_CACHE_SIZE", 1000)
	v.SetDefault("PERSISTENCE_TITLE_CACHE_TTL", time.Hour)

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("REALTIME_MAX_CONNECTIONS", 10_000)
	v.SetDefault("REALTIME_MAX_CONNECTIONS_PER_IP", 50)
	v.SetDefault("REALTIME_MAX_SUBSCRIPTIONS_PER_CONN", 20)
}
