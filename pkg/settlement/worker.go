package settlement

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/onchain"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// FillPublisher is the subset of *streams.Stream the settlement worker
// needs to announce a confirmed leg to the persistence worker.
type FillPublisher interface {
	Append(ctx context.Context, fields map[string]interface{}) (string, error)
}

// StatusOracle is the subset of *onchain.Oracle the retry path consults
// to tell a genuine failure from a submission that actually landed
// on-chain but whose confirmation read timed out client-side.
type StatusOracle interface {
	StatusOf(ctx context.Context, orderHash [32]byte) (*onchain.Status, error)
}

// Config tunes the retry/backoff and submission timeout behavior.
type Config struct {
	Consumer      string
	ReserveBlock  time.Duration // default 5s
	SubmitTimeout time.Duration // default 60s
	BaseBackoff   time.Duration // default 500ms
	MaxAttempts   int           // default 3
}

// Worker drains the settlement queue and submits one batched
// transaction per job, retrying with exponential backoff before
// marking the job's legs failed and moving it to the dead-letter list.
type Worker struct {
	queue     Queue
	store     obstore.Store
	submitter Submitter
	fills     FillPublisher
	oracle    StatusOracle
	cfg       Config
	log       *zap.Logger
}

// New wires a Worker. fills is typically a *streams.Stream bound to
// streams.Fills. oracle may be nil, in which case the retry loop never
// consults on-chain status and falls back to submit-error-only
// retries.
func New(queue Queue, store obstore.Store, submitter Submitter, fills FillPublisher, oracle StatusOracle, cfg Config, log *zap.Logger) *Worker {
	if cfg.ReserveBlock == 0 {
		cfg.ReserveBlock = 5 * time.Second
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		queue:     queue,
		store:     store,
		submitter: submitter,
		fills:     fills,
		oracle:    oracle,
		cfg:       cfg,
		log:       log,
	}
}

// Run reserves jobs until ctx is cancelled, processing one at a time.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, ok, err := w.queue.Reserve(ctx, w.cfg.Consumer, w.cfg.ReserveBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("reserve failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		if err := w.processJob(ctx, raw); err != nil {
			w.log.Error("job processing failed permanently", zap.Error(err))
		}
	}
}

func (w *Worker) processJob(ctx context.Context, raw []byte) error {
	job, err := DecodeJob(raw)
	if err != nil {
		// Malformed job: nothing to retry, drop it onto the dead-letter
		// list directly.
		return w.queue.Fail(ctx, w.cfg.Consumer, raw)
	}

	taker, makers, err := w.hydrate(ctx, job)
	if err != nil {
		w.log.Error("hydrate failed, dead-lettering job", zap.Error(err))
		return w.queue.Fail(ctx, w.cfg.Consumer, raw)
	}

	accounts := make([]solana.PublicKey, 0, len(makers)+2)
	accounts = append(accounts, solana.PublicKeyFromBytes(taker.Order.Market[:]))
	accounts = append(accounts, solana.PublicKeyFromBytes(taker.Order.Maker[:]))
	for _, m := range makers {
		accounts = append(accounts, solana.PublicKeyFromBytes(m.Order.Maker[:]))
	}

	var lastErr error
	for attempt := 0; attempt < w.cfg.MaxAttempts; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
		sig, err := w.submitter.Submit(submitCtx, job, accounts)
		cancel()
		if err == nil {
			return w.onSettled(ctx, job, taker, makers, sig, raw)
		}
		lastErr = err
		w.log.Warn("settlement submit failed, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))

		if w.oracle != nil {
			if settled, statusErr := w.checkAlreadySettled(ctx, job.TakerOrderHash); statusErr != nil {
				w.log.Warn("status check before retry failed", zap.Error(statusErr))
			} else if settled {
				w.log.Info("submission actually landed despite a client-side error, treating as settled",
					zap.String("taker", hex.EncodeToString(job.TakerOrderHash[:])))
				return w.onSettled(ctx, job, taker, makers, "recovered-from-timeout", raw)
			}
		}

		backoff := w.cfg.BaseBackoff * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return w.onFailed(ctx, job, taker, makers, raw, lastErr)
}

// checkAlreadySettled asks the on-chain oracle whether the taker leg's
// order account already shows filled-or-cancelled, the signal that a
// prior submit attempt succeeded even though its confirmation response
// timed out client-side (spec.md §4.7).
func (w *Worker) checkAlreadySettled(ctx context.Context, takerHash [32]byte) (bool, error) {
	status, err := w.oracle.StatusOf(ctx, takerHash)
	if err != nil {
		return false, fmt.Errorf("settlement: status check: %w", err)
	}
	if status == nil {
		return false, nil
	}
	return status.IsFilledOrCancelled, nil
}

func (w *Worker) hydrate(ctx context.Context, job matching.Job) (obstore.Record, []obstore.Record, error) {
	taker, err := w.store.Get(ctx, job.TakerOrderHash)
	if err != nil {
		return obstore.Record{}, nil, fmt.Errorf("settlement: fetch taker record: %w", err)
	}

	makers := make([]obstore.Record, 0, len(job.MakerOrderHashes))
	for _, h := range job.MakerOrderHashes {
		rec, err := w.store.Get(ctx, h)
		if err != nil {
			return obstore.Record{}, nil, fmt.Errorf("settlement: fetch maker record %x: %w", h, err)
		}
		makers = append(makers, rec)
	}
	return taker, makers, nil
}

func (w *Worker) onSettled(ctx context.Context, job matching.Job, taker obstore.Record, makers []obstore.Record, signature string, raw []byte) error {
	now := time.Now().UnixMilli()

	for i, m := range makers {
		if err := w.store.SetStatus(ctx, m.OrderHash, obstore.StatusSettled); err != nil {
			w.log.Warn("set maker status settled failed", zap.Error(err))
		}
		w.publishFill(ctx, job.TakerOrderHash, m.OrderHash, taker.Order.Maker, m.Order.Maker,
			taker.Order.Market, taker.Order.TokenID, taker.Order.Side, order.Price(m.Order), job.MakerFillAmounts[i], now)
	}
	if err := w.store.SetStatus(ctx, job.TakerOrderHash, obstore.StatusSettled); err != nil {
		w.log.Warn("set taker status settled failed", zap.Error(err))
	}

	w.log.Info("settlement confirmed", zap.String("signature", signature), zap.String("taker", hex.EncodeToString(job.TakerOrderHash[:])))
	return w.queue.Ack(ctx, w.cfg.Consumer, raw)
}

func (w *Worker) onFailed(ctx context.Context, job matching.Job, taker obstore.Record, makers []obstore.Record, raw []byte, cause error) error {
	for _, m := range makers {
		if err := w.store.SetStatus(ctx, m.OrderHash, obstore.StatusFailed); err != nil {
			w.log.Warn("set maker status failed failed", zap.Error(err))
		}
	}
	if err := w.store.SetStatus(ctx, job.TakerOrderHash, obstore.StatusFailed); err != nil {
		w.log.Warn("set taker status failed failed", zap.Error(err))
	}
	w.log.Error("settlement exhausted retries", zap.Error(cause), zap.String("taker", hex.EncodeToString(job.TakerOrderHash[:])))
	return w.queue.Fail(ctx, w.cfg.Consumer, raw)
}

// publishFill appends a fill event onto stream:fills for the
// persistence worker to upsert; failures here are logged and
// swallowed since settlement itself already succeeded on-chain.
func (w *Worker) publishFill(ctx context.Context, takerHash, makerHash, takerOwner, makerOwner, market [32]byte, tokenID, side uint8, price, size uint64, timestampMs int64) {
	_, err := w.fills.Append(ctx, map[string]interface{}{
		"maker_order_hash": hex.EncodeToString(makerHash[:]),
		"taker_order_hash": hex.EncodeToString(takerHash[:]),
		"maker_owner":      hex.EncodeToString(makerOwner[:]),
		"taker_owner":      hex.EncodeToString(takerOwner[:]),
		"market":           hex.EncodeToString(market[:]),
		"token_id":         strconv.FormatUint(uint64(tokenID), 10),
		"side":             strconv.FormatUint(uint64(side), 10),
		"price":            strconv.FormatUint(price, 10),
		"size":             strconv.FormatUint(size, 10),
		"timestamp_ms":     strconv.FormatInt(timestampMs, 10),
	})
	if err != nil {
		w.log.Error("publish fill failed", zap.Error(err))
	}
}
