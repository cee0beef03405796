package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/ledger"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/streams"
)

// handleFill implements spec.md §4.6's fill processing: probe the
// idempotency pair, upsert the fill row, append the trade-history row,
// then best-effort update the title cache and notify both owners. A
// probe hit short-circuits before any write, making replay free.
func (w *Worker) handleFill(ctx context.Context, msg streams.Message) error {
	f := msg.Fields

	makerHash := fieldString(f, "maker_order_hash")
	takerHash := fieldString(f, "taker_order_hash")

	exists, err := w.ledger.FillExists(ctx, makerHash, takerHash)
	if err != nil {
		return fmt.Errorf("persistence: fill exists probe: %w", err)
	}
	if exists {
		return nil
	}

	market := fieldString(f, "market")
	tokenID := fieldUint8(f, "token_id")
	side := fieldUint8(f, "side")
	price := fieldString(f, "price")
	size := fieldString(f, "size")
	timestampMs := fieldInt64(f, "timestamp_ms")
	makerOwner := fieldString(f, "maker_owner")
	takerOwner := fieldString(f, "taker_owner")

	fill := ledger.OrderFill{
		MakerOrderHash: makerHash,
		TakerOrderHash: takerHash,
		MakerOwner:     makerOwner,
		TakerOwner:     takerOwner,
		Market:         market,
		TokenID:        tokenID,
		Side:           side,
		Price:          price,
		Size:           size,
		TimestampMs:    timestampMs,
	}
	if err := w.ledger.UpsertFill(ctx, fill); err != nil {
		return err
	}

	trade := ledger.Trade{
		MakerOrderHash: makerHash,
		TakerOrderHash: takerHash,
		Market:         market,
		TokenID:        tokenID,
		Price:          price,
		Size:           size,
		TimestampMs:    timestampMs,
	}
	if err := w.ledger.AppendTrade(ctx, trade); err != nil {
		return err
	}

	w.notifyFill(ctx, market, makerOwner, takerOwner, side, price, size)
	return nil
}

// notifyFill is best-effort: a title-cache miss or notifier failure
// never blocks the fill from being acked, since the write to the
// ledger (the durable record) has already succeeded.
func (w *Worker) notifyFill(ctx context.Context, market, makerOwner, takerOwner string, side uint8, price, size string) {
	title, err := w.titles.Title(ctx, market)
	if err != nil {
		w.log.Warn("title lookup failed for notification", zap.String("market", market), zap.Error(err))
		title = market
	}
	payload := map[string]interface{}{
		"market":      market,
		"marketTitle": title,
		"side":        side,
		"price":       price,
		"size":        size,
	}
	if w.notifier == nil {
		return
	}
	w.notifier.NotifyUser(makerOwner, "fill", payload)
	w.notifier.NotifyUser(takerOwner, "fill", payload)
}

// handleOrder upserts an order's resting-state row, keyed on its
// fingerprint, so order status survives a persistence-worker restart
// without replaying the matching engine's in-memory state.
func (w *Worker) handleOrder(ctx context.Context, msg streams.Message) error {
	f := msg.Fields
	o := ledger.Order{
		OrderHash:       fieldString(f, "order_hash"),
		Maker:           fieldString(f, "maker"),
		Signer:          fieldString(f, "signer"),
		Taker:           fieldString(f, "taker"),
		Market:          fieldString(f, "market"),
		TokenID:         fieldUint8(f, "token_id"),
		Side:            fieldUint8(f, "side"),
		MakerAmount:     fieldString(f, "maker_amount"),
		TakerAmount:     fieldString(f, "taker_amount"),
		Expiration:      fieldInt64(f, "expiration"),
		Nonce:           uint64(fieldInt64(f, "nonce")),
		FeeRateBps:      uint16(fieldInt64(f, "fee_rate_bps")),
		Status:          fieldString(f, "status"),
		FilledAmount:    fieldString(f, "filled_amount"),
		RemainingAmount: fieldString(f, "remaining_amount"),
	}
	return w.ledger.UpsertOrder(ctx, o)
}

// handleDeposit processes both deposits and withdrawals landing on
// stream:deposits, probing on transaction_signature for idempotency
// before crediting or debiting the user's ledger balance.
func (w *Worker) handleDeposit(ctx context.Context, msg streams.Message) error {
	f := msg.Fields

	userID := fieldString(f, "user_id")
	opType := fieldString(f, "type")
	txSig := fieldString(f, "transaction_signature")
	amount := fieldString(f, "amount")
	status := fieldString(f, "status")

	op := ledger.UserOperation{
		UserID:               userID,
		Type:                 opType,
		TransactionSignature: txSig,
		Amount:               amount,
		Status:               status,
	}
	inserted, err := w.ledger.UpsertOperation(ctx, op)
	if err != nil {
		return fmt.Errorf("persistence: upsert operation: %w", err)
	}
	if !inserted {
		return nil
	}

	switch opType {
	case "deposit":
		return w.ledger.DepositUSDCBalance(ctx, userID, amount, txSig)
	case "withdrawal":
		return w.ledger.DecrementBalance(ctx, userID, "usdc_available", amount)
	default:
		return fmt.Errorf("persistence: unknown operation type %q", opType)
	}
}
