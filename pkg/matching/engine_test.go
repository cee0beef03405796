package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore/memstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

func mkMaker(id byte) [32]byte {
	var m [32]byte
	m[0] = id
	return m
}

var testMarket = mkMaker(0xAA)

func sellOrder(maker byte, remaining, price uint64) order.Order {
	return order.Order{
		Salt:        uint64(remaining)<<32 | uint64(price),
		Maker:       mkMaker(maker),
		Signer:      mkMaker(maker),
		Taker:       order.DefaultTaker,
		Market:      testMarket,
		TokenID:     order.TokenYes,
		MakerAmount: remaining,
		TakerAmount: price * remaining / order.PriceScale,
		Nonce:       1,
		Side:        order.SideSell,
	}
}

func buyOrder(maker byte, amount, price uint64) order.Order {
	return order.Order{
		Salt:        uint64(amount)<<32 | uint64(price) + 7,
		Maker:       mkMaker(maker),
		Signer:      mkMaker(maker),
		Taker:       order.DefaultTaker,
		Market:      testMarket,
		TokenID:     order.TokenYes,
		MakerAmount: price * amount / order.PriceScale,
		TakerAmount: amount,
		Nonce:       1,
		Side:        order.SideBuy,
	}
}

func insert(t *testing.T, s *memstore.Store, o order.Order) [32]byte {
	t.Helper()
	h := order.Hash(o)
	err := s.Insert(context.Background(), obstore.Record{
		OrderHash:       h,
		Order:           o,
		Status:          obstore.StatusOpen,
		RemainingAmount: o.MakerAmount,
	})
	require.NoError(t, err)
	return h
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// Scenario 1: clean cross — resting SELL 100 @ 600k, incoming BUY
// matching exactly.
func TestCleanCross(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	sell := sellOrder(1, 100, 600_000)
	insert(t, s, sell)

	buy := order.Order{
		Maker: mkMaker(2), Signer: mkMaker(2), Taker: order.DefaultTaker,
		Market: testMarket, TokenID: order.TokenYes,
		MakerAmount: 60_000_000, TakerAmount: 100, Nonce: 1, Side: order.SideBuy,
	}
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Fills, 1)
	require.Equal(t, uint64(100), res.Fills[0].Size)
	require.Equal(t, uint64(600_000), res.Fills[0].Price)
	require.Len(t, res.Jobs, 1)
	require.Len(t, res.Jobs[0].MakerOrderHashes, 1)

	makerRec, err := s.Get(ctx, order.Hash(sell))
	require.NoError(t, err)
	require.Equal(t, obstore.StatusMatched, makerRec.Status)
}

// Scenario 2: partial cross then rest — maker filled, taker carries a
// remainder the caller is responsible for resting.
func TestPartialCrossLeavesTakerRemainder(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	sell := sellOrder(1, 50, 500_000)
	insert(t, s, sell)

	buy := buyOrder(2, 80, 600_000)
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Fills, 1)
	require.Equal(t, uint64(50), res.Fills[0].Size)
	require.Equal(t, uint64(500_000), res.Fills[0].Price)

	var filled uint64
	for _, f := range res.Fills {
		filled += f.Size
	}
	require.Equal(t, uint64(30), buy.TakerAmount-filled)
}

// Scenario 3: multi-maker batch — five resting SELLs fully consumed by
// one incoming BUY.
func TestMultiMakerBatch(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	prices := []uint64{500_000, 510_000, 520_000, 530_000, 540_000}
	for i, p := range prices {
		insert(t, s, sellOrder(byte(10+i), 100, p))
	}

	buy := buyOrder(99, 500, 550_000)
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Fills, 5)
	for i, f := range res.Fills {
		require.Equal(t, uint64(100), f.Size)
		require.Equal(t, prices[i], f.Price)
	}
	require.Len(t, res.Jobs, 1)
	require.Len(t, res.Jobs[0].MakerOrderHashes, 5)
	require.Equal(t, uint64(500), res.Jobs[0].TakerFillAmount)
}

// Scenario 4: overflow split — six resting SELLs all cross the taker's
// limit, so the batch cap of 5 closes the first job and the sixth leg
// spills into a second job rather than going unfilled.
func TestOverflowSplitProducesSecondJobForResidualLeg(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	prices := []uint64{500_000, 510_000, 520_000, 530_000, 540_000, 550_000}
	for i, p := range prices {
		insert(t, s, sellOrder(byte(20+i), 10, p))
	}

	buy := buyOrder(99, 60, 560_000)
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Fills, 6)

	require.Len(t, res.Jobs, 2)
	require.Len(t, res.Jobs[0].MakerOrderHashes, MaxBatchLegs)
	require.Equal(t, uint64(50), res.Jobs[0].TakerFillAmount)
	require.Len(t, res.Jobs[1].MakerOrderHashes, 1)
	require.Equal(t, uint64(10), res.Jobs[1].TakerFillAmount)
	require.Equal(t, buyHash, res.Jobs[1].TakerOrderHash)

	var filled uint64
	for _, f := range res.Fills {
		filled += f.Size
	}
	require.Equal(t, buy.TakerAmount, filled)
}

// Scenario 5: self-trade skip — same maker on both sides produces zero
// fills and leaves the resting order untouched.
func TestSelfTradeSkip(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	sell := sellOrder(7, 10, 500_000)
	sellHash := insert(t, s, sell)

	buy := order.Order{
		Maker: mkMaker(7), Signer: mkMaker(7), Taker: order.DefaultTaker,
		Market: testMarket, TokenID: order.TokenYes,
		MakerAmount: 6_000_000, TakerAmount: 10, Nonce: 1, Side: order.SideBuy,
	}
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.False(t, res.Matched)
	require.Len(t, res.Fills, 0)

	rec, err := s.Get(ctx, sellHash)
	require.NoError(t, err)
	require.Equal(t, uint64(10), rec.RemainingAmount)
}

func TestNoCrossReturnsUnmatched(t *testing.T) {
	s := memstore.New()
	eng := New(s, fixedClock(time.Unix(1_700_000_000, 0)))
	ctx := context.Background()

	insert(t, s, sellOrder(1, 10, 700_000))

	buy := buyOrder(2, 10, 600_000)
	buyHash := order.Hash(buy)

	res, err := eng.TryMatch(ctx, buy, buyHash)
	require.NoError(t, err)
	require.False(t, res.Matched)
}
