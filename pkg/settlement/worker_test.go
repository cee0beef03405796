package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore/memstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/onchain"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/settlement/memqueue"
)

// alwaysFailSubmitter simulates a submission whose client-side
// confirmation always times out, even though the transaction actually
// landed on-chain.
type alwaysFailSubmitter struct{ calls int }

func (a *alwaysFailSubmitter) Submit(_ context.Context, _ matching.Job, _ []solana.PublicKey) (string, error) {
	a.calls++
	return "", errors.New("confirmation timeout")
}

type fakeStatusOracle struct {
	settled map[[32]byte]bool
}

func (f *fakeStatusOracle) StatusOf(_ context.Context, orderHash [32]byte) (*onchain.Status, error) {
	if f.settled[orderHash] {
		return &onchain.Status{IsFilledOrCancelled: true, Remaining: 0}, nil
	}
	return &onchain.Status{IsFilledOrCancelled: false, Remaining: 1}, nil
}

type fakeSubmitter struct {
	mu        sync.Mutex
	failUntil int
	calls     int
}

func (f *fakeSubmitter) Submit(_ context.Context, _ matching.Job, _ []solana.PublicKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return "", errors.New("simulated rpc failure")
	}
	return "sig-" + string(rune('a'+f.calls)), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	appended []map[string]interface{}
}

func (f *fakePublisher) Append(_ context.Context, fields map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, fields)
	return "msg-1", nil
}

func insertRestingOrder(t *testing.T, s *memstore.Store, maker byte, side uint8, makerAmt, takerAmt uint64) [32]byte {
	t.Helper()
	var m, market [32]byte
	m[0] = maker
	market[0] = 0x01
	o := order.Order{
		Salt: uint64(maker) + 1, Maker: m, Signer: m, Taker: order.DefaultTaker,
		Market: market, TokenID: order.TokenYes, MakerAmount: makerAmt, TakerAmount: takerAmt,
		Nonce: 1, Side: side,
	}
	h := order.Hash(o)
	require.NoError(t, s.Insert(context.Background(), obstore.Record{
		OrderHash: h, Order: o, Status: obstore.StatusOpen, RemainingAmount: makerAmt,
	}))
	return h
}

func TestWorkerSettlesJobOnFirstAttempt(t *testing.T) {
	store := memstore.New()
	takerHash := insertRestingOrder(t, store, 1, order.SideBuy, 100, 50_000_000)
	makerHash := insertRestingOrder(t, store, 2, order.SideSell, 100, 50_000_000)
	// Decrement both as the matching engine would before enqueueing the job.
	_, _, ok, err := store.Decrement(context.Background(), takerHash, 100)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, ok, err = store.Decrement(context.Background(), makerHash, 100)
	require.NoError(t, err)
	require.True(t, ok)

	queue := memqueue.New()
	job := matching.Job{TakerOrderHash: takerHash, TakerFillAmount: 100, MakerOrderHashes: [][32]byte{makerHash}, MakerFillAmounts: []uint64{100}}
	encoded, err := EncodeJob(job)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), encoded))

	submitter := &fakeSubmitter{}
	publisher := &fakePublisher{}
	log := zap.NewNop()
	w := New(queue, store, submitter, publisher, nil, Config{Consumer: "test", ReserveBlock: 50 * time.Millisecond, BaseBackoff: time.Millisecond}, log)

	raw, ok, err := queue.Reserve(context.Background(), "test", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, w.processJob(context.Background(), raw))

	takerRec, err := store.Get(context.Background(), takerHash)
	require.NoError(t, err)
	require.Equal(t, obstore.StatusSettled, takerRec.Status)

	makerRec, err := store.Get(context.Background(), makerHash)
	require.NoError(t, err)
	require.Equal(t, obstore.StatusSettled, makerRec.Status)

	require.Len(t, publisher.appended, 1)
	require.Equal(t, "100", publisher.appended[0]["size"])
}

func TestWorkerRetriesThenSettles(t *testing.T) {
	store := memstore.New()
	takerHash := insertRestingOrder(t, store, 3, order.SideBuy, 40, 20_000_000)
	makerHash := insertRestingOrder(t, store, 4, order.SideSell, 40, 20_000_000)
	_, _, ok, err := store.Decrement(context.Background(), takerHash, 40)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, ok, err = store.Decrement(context.Background(), makerHash, 40)
	require.NoError(t, err)
	require.True(t, ok)

	queue := memqueue.New()
	job := matching.Job{TakerOrderHash: takerHash, TakerFillAmount: 40, MakerOrderHashes: [][32]byte{makerHash}, MakerFillAmounts: []uint64{40}}
	encoded, err := EncodeJob(job)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), encoded))

	submitter := &fakeSubmitter{failUntil: 2}
	publisher := &fakePublisher{}
	log := zap.NewNop()
	w := New(queue, store, submitter, publisher, nil, Config{Consumer: "test", BaseBackoff: time.Millisecond, MaxAttempts: 3}, log)

	raw, ok, err := queue.Reserve(context.Background(), "test", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, w.processJob(context.Background(), raw))
	require.Equal(t, 3, submitter.calls)

	takerRec, err := store.Get(context.Background(), takerHash)
	require.NoError(t, err)
	require.Equal(t, obstore.StatusSettled, takerRec.Status)
}

func TestWorkerDeadLettersAfterExhaustingRetries(t *testing.T) {
	store := memstore.New()
	takerHash := insertRestingOrder(t, store, 5, order.SideBuy, 10, 5_000_000)
	makerHash := insertRestingOrder(t, store, 6, order.SideSell, 10, 5_000_000)
	_, _, ok, err := store.Decrement(context.Background(), takerHash, 10)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, ok, err = store.Decrement(context.Background(), makerHash, 10)
	require.NoError(t, err)
	require.True(t, ok)

	queue := memqueue.New()
	job := matching.Job{TakerOrderHash: takerHash, TakerFillAmount: 10, MakerOrderHashes: [][32]byte{makerHash}, MakerFillAmounts: []uint64{10}}
	encoded, err := EncodeJob(job)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), encoded))

	submitter := &fakeSubmitter{failUntil: 99}
	publisher := &fakePublisher{}
	log := zap.NewNop()
	w := New(queue, store, submitter, publisher, nil, Config{Consumer: "test", BaseBackoff: time.Millisecond, MaxAttempts: 2}, log)

	raw, ok, err := queue.Reserve(context.Background(), "test", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, w.processJob(context.Background(), raw))
	require.Equal(t, 2, submitter.calls)

	takerRec, err := store.Get(context.Background(), takerHash)
	require.NoError(t, err)
	require.Equal(t, obstore.StatusFailed, takerRec.Status)

	require.Len(t, queue.Failed(), 1)
	require.Empty(t, publisher.appended)
}

func TestWorkerRecoversFromTimeoutViaOracle(t *testing.T) {
	store := memstore.New()
	takerHash := insertRestingOrder(t, store, 7, order.SideBuy, 20, 10_000_000)
	makerHash := insertRestingOrder(t, store, 8, order.SideSell, 20, 10_000_000)
	_, _, ok, err := store.Decrement(context.Background(), takerHash, 20)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, ok, err = store.Decrement(context.Background(), makerHash, 20)
	require.NoError(t, err)
	require.True(t, ok)

	queue := memqueue.New()
	job := matching.Job{TakerOrderHash: takerHash, TakerFillAmount: 20, MakerOrderHashes: [][32]byte{makerHash}, MakerFillAmounts: []uint64{20}}
	encoded, err := EncodeJob(job)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), encoded))

	submitter := &alwaysFailSubmitter{}
	publisher := &fakePublisher{}
	oracle := &fakeStatusOracle{settled: map[[32]byte]bool{takerHash: true}}
	log := zap.NewNop()
	w := New(queue, store, submitter, publisher, oracle, Config{Consumer: "test", BaseBackoff: time.Millisecond, MaxAttempts: 5}, log)

	raw, ok, err := queue.Reserve(context.Background(), "test", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, w.processJob(context.Background(), raw))
	// The very first submit attempt fails, and the oracle check right
	// after it already reports settled, so no further attempts happen.
	require.Equal(t, 1, submitter.calls)

	takerRec, err := store.Get(context.Background(), takerHash)
	require.NoError(t, err)
	require.Equal(t, obstore.StatusSettled, takerRec.Status)
}
