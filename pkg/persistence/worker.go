// Package persistence implements the stream-to-ledger consumer (C6):
// claim-then-read-then-process loops over stream:fills, stream:orders,
// and stream:deposits, idempotent upserts into pkg/ledger, and a
// periodic cursor-scanned balance snapshot. The loop shape is grounded
// on the same corpus source as pkg/settlement (the keeper reference
// file's ticking poll loop), generalized here to three concurrent
// stream consumers instead of one.
package persistence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/ledger"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/streams"
)

// Notifier delivers a trade/order notification to a user's private
// channel; pkg/realtime.Hub implements this.
type Notifier interface {
	NotifyUser(userID string, event string, payload map[string]interface{})
}

// Config tunes the worker loop per spec.md §4.6.
type Config struct {
	Group            string
	Consumer         string
	ClaimIdle        time.Duration // default 60s
	ReadCount        int64         // default 100
	ReadBlock        time.Duration // default 5s
	SnapshotEveryN   int           // default 60
	SnapshotBatch    int           // default 50
}

// Worker consumes the three streams and writes into the ledger.
type Worker struct {
	rdb      *redis.Client
	fills    *streams.Stream
	orders   *streams.Stream
	deposits *streams.Stream
	ledger   *ledger.Ledger
	titles   *TitleCache
	notifier Notifier
	cfg      Config
	log      *zap.Logger

	snapshotTick int
	snapshotMu   sync.Mutex
}

// New wires a Worker over an already-connected Redis client and
// Ledger.
func New(rdb *redis.Client, l *ledger.Ledger, titles *TitleCache, notifier Notifier, cfg Config, log *zap.Logger) *Worker {
	if cfg.ClaimIdle == 0 {
		cfg.ClaimIdle = streams.DefaultIdle
	}
	if cfg.ReadCount == 0 {
		cfg.ReadCount = 100
	}
	if cfg.ReadBlock == 0 {
		cfg.ReadBlock = 5 * time.Second
	}
	if cfg.SnapshotEveryN == 0 {
		cfg.SnapshotEveryN = 60
	}
	if cfg.SnapshotBatch == 0 {
		cfg.SnapshotBatch = 50
	}
	return &Worker{
		rdb:      rdb,
		fills:    streams.New(rdb, streams.Fills),
		orders:   streams.New(rdb, streams.Orders),
		deposits: streams.New(rdb, streams.Deposits),
		ledger:   l,
		titles:   titles,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// Run starts one goroutine per stream and blocks until ctx is
// cancelled, then waits (up to the caller's own shutdown timer) for
// each loop to finish its in-flight message before returning.
func (w *Worker) Run(ctx context.Context) error {
	for _, s := range []*streams.Stream{w.fills, w.orders, w.deposits} {
		if err := s.EnsureGroup(ctx, w.cfg.Group); err != nil {
			return fmt.Errorf("persistence: ensure group: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); w.loop(ctx, w.fills, w.handleFill) }()
	go func() { defer wg.Done(); w.loop(ctx, w.orders, w.handleOrder) }()
	go func() { defer wg.Done(); w.loop(ctx, w.deposits, w.handleDeposit) }()
	wg.Wait()
	return nil
}

type messageHandler func(ctx context.Context, msg streams.Message) error

// loop implements the claim-then-read-then-process iteration from
// spec.md §4.6: claim pending older than the idle threshold, block-read
// new messages, process each and ack on success, leave failures
// unacked for redelivery.
func (w *Worker) loop(ctx context.Context, s *streams.Stream, handle messageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := s.ClaimPending(ctx, w.cfg.Group, w.cfg.Consumer, w.cfg.ClaimIdle, w.cfg.ReadCount)
		if err != nil {
			w.log.Warn("claim pending failed", zap.Error(err))
		}
		w.process(ctx, s, claimed, handle)

		msgs, err := s.ReadGroup(ctx, w.cfg.Group, w.cfg.Consumer, w.cfg.ReadCount, w.cfg.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("read group failed", zap.Error(err))
			continue
		}
		w.process(ctx, s, msgs, handle)

		w.maybeSnapshot(ctx)
	}
}

func (w *Worker) process(ctx context.Context, s *streams.Stream, msgs []streams.Message, handle messageHandler) {
	for _, m := range msgs {
		if err := handle(ctx, m); err != nil {
			w.log.Error("message processing failed, leaving unacked",
				zap.String("stream", s.Name()), zap.String("id", m.ID), zap.Error(err))
			continue
		}
		if err := s.Ack(ctx, w.cfg.Group, m.ID); err != nil {
			w.log.Error("ack failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
}

func fieldString(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

func fieldInt64(fields map[string]interface{}, key string) int64 {
	s := fieldString(fields, key)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func fieldUint8(fields map[string]interface{}, key string) uint8 {
	s := fieldString(fields, key)
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0
	}
	return uint8(n)
}

// maybeSnapshot runs the periodic balance-cache snapshot every
// SnapshotEveryN iterations of any stream loop (the first loop to
// reach the threshold triggers it; the mutex makes concurrent loops
// safe to call this from).
func (w *Worker) maybeSnapshot(ctx context.Context) {
	w.snapshotMu.Lock()
	w.snapshotTick++
	due := w.snapshotTick >= w.cfg.SnapshotEveryN
	if due {
		w.snapshotTick = 0
	}
	w.snapshotMu.Unlock()

	if !due {
		return
	}
	if err := w.snapshotBalances(ctx); err != nil {
		w.log.Error("balance snapshot failed", zap.Error(err))
	}
}

// snapshotBalances scans the cache for bal:* keys using a cursor-based
// SCAN (never KEYS/whole-keyspace enumeration) and bulk-upserts into
// the ledger in batches of SnapshotBatch.
func (w *Worker) snapshotBalances(ctx context.Context) error {
	var cursor uint64
	batch := make([]ledger.UserBalance, 0, w.cfg.SnapshotBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.ledger.BulkUpsertBalanceSnapshots(ctx, batch)
		batch = batch[:0]
		return err
	}

	for {
		keys, next, err := w.rdb.Scan(ctx, cursor, "bal:*", 100).Result()
		if err != nil {
			return fmt.Errorf("persistence: scan bal keys: %w", err)
		}

		for _, key := range keys {
			userID := key[len("bal:"):]
			fields, err := w.rdb.HGetAll(ctx, key).Result()
			if err != nil {
				w.log.Warn("read balance hash failed", zap.String("key", key), zap.Error(err))
				continue
			}
			batch = append(batch, ledger.UserBalance{
				UserID:        userID,
				UsdcAvailable: fields["usdc_available"],
				UsdcLocked:    fields["usdc_locked"],
				YesAvailable:  fields["yes_available"],
				YesLocked:     fields["yes_locked"],
				NoAvailable:   fields["no_available"],
				NoLocked:      fields["no_locked"],
			})
			if len(batch) >= w.cfg.SnapshotBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return flush()
}
