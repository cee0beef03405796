package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/apierr"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/realtime"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/settlement"
)

// handleSubmitOrder is the intake path (C1): validate, verify the
// signature, check the maker's nonce and the market's active flag,
// insert into the book, then run the crossing algorithm inline —
// matching is not a separate consumer of stream:orders, it happens on
// this request before the response is written.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signedOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidOrder, "malformed request body", err))
		return
	}

	o, err := req.Order.toOrder()
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidOrder, "malformed order fields", err))
		return
	}

	if err := order.Validate(o); err != nil {
		respondError(w, mapValidationError(err))
		return
	}
	if order.IsExpired(o, s.now().Unix()) {
		respondError(w, apierr.New(apierr.CodeOrderExpired, "order expiration has passed"))
		return
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidSignature, "malformed signature", err))
		return
	}
	if err := order.Verify(o, sig); err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidSignature, "signature does not match signer", err))
		return
	}

	knownNonce, err := s.oracle.NonceOf(ctx, o.Maker)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "nonce lookup unavailable", err))
		return
	}
	if o.Nonce < knownNonce {
		respondError(w, apierr.New(apierr.CodeInvalidNonce, "nonce has already been consumed"))
		return
	}

	if s.registry != nil && s.registry.Count() > 0 && !s.registry.IsActive(hexID(o.Market)) {
		respondError(w, apierr.New(apierr.CodeValidationError, "market is unknown or inactive"))
		return
	}

	hash := order.Hash(o)
	rec := obstore.Record{
		OrderHash:       hash,
		Order:           o,
		Signature:       sig,
		Status:          obstore.StatusOpen,
		RemainingAmount: o.MakerAmount,
		CreatedAt:       s.now(),
	}
	if err := s.store.Insert(ctx, rec); err != nil && !errors.Is(err, obstore.ErrDuplicateInsert) {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "order storage unavailable", err))
		return
	}

	s.publishOrderEvent(ctx, hash, o, obstore.StatusOpen, 0, o.MakerAmount)

	result, err := s.engine.TryMatch(ctx, o, hash)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "matching unavailable", err))
		return
	}

	status := "accepted"
	if result.Matched {
		status = "matched"

		var totalFilled uint64
		for _, f := range result.Fills {
			totalFilled += f.Size
		}
		if _, _, ok, err := s.store.Decrement(ctx, hash, totalFilled); err != nil || !ok {
			s.log.Error("decrement taker's own resting record failed", zap.Error(err), zap.Bool("ok", ok))
		}

		s.publishMatchResult(ctx, result)

		if updated, err := s.store.Get(ctx, hash); err == nil {
			s.publishOrderEvent(ctx, hash, o, updated.Status, updated.FilledAmount, updated.RemainingAmount)
		}
	}

	respondJSON(w, http.StatusOK, signedOrderResponse{
		OrderHash: order.FingerprintString(hash),
		Status:    status,
		Order:     req.Order,
	})
}

// mapValidationError translates an *order.ValidationError's kind into
// the matching apierr code, falling back to INVALID_ORDER.
func mapValidationError(err error) error {
	ve, ok := err.(*order.ValidationError)
	if !ok {
		return apierr.Wrap(apierr.CodeInvalidOrder, "order failed validation", err)
	}
	switch ve.Kind {
	case order.ErrOrderExpired:
		return apierr.New(apierr.CodeOrderExpired, ve.Reason)
	case order.ErrInvalidSignature:
		return apierr.New(apierr.CodeInvalidSignature, ve.Reason)
	default:
		return apierr.New(apierr.CodeInvalidOrder, ve.Reason)
	}
}

// publishOrderEvent announces an order's current lifecycle state onto
// stream:orders for the persistence worker to upsert.
func (s *Server) publishOrderEvent(ctx context.Context, hash [32]byte, o order.Order, status obstore.Status, filled, remaining uint64) {
	_, err := s.orders.Append(ctx, map[string]interface{}{
		"order_hash":       hexID(hash),
		"maker":            hexID(o.Maker),
		"signer":           hexID(o.Signer),
		"taker":            hexID(o.Taker),
		"market":           hexID(o.Market),
		"token_id":         strconv.FormatUint(uint64(o.TokenID), 10),
		"side":             strconv.FormatUint(uint64(o.Side), 10),
		"maker_amount":     strconv.FormatUint(o.MakerAmount, 10),
		"taker_amount":     strconv.FormatUint(o.TakerAmount, 10),
		"expiration":       strconv.FormatInt(o.Expiration, 10),
		"nonce":            strconv.FormatUint(o.Nonce, 10),
		"fee_rate_bps":     strconv.FormatUint(uint64(o.FeeRateBps), 10),
		"status":           string(status),
		"filled_amount":    strconv.FormatUint(filled, 10),
		"remaining_amount": strconv.FormatUint(remaining, 10),
	})
	if err != nil {
		s.log.Error("publish order event failed", zap.Error(err), zap.String("order_hash", order.FingerprintString(hash)))
	}
}

// publishMatchResult pushes every fill onto stream:fills, enqueues the
// resulting settlement jobs, and best-effort fans out a public trade
// tick for the matched market — the private fill notification to each
// counterparty's own channel is the persistence worker's job once it
// processes stream:fills, so it is not duplicated here.
func (s *Server) publishMatchResult(ctx context.Context, result matching.Result) {
	for _, f := range result.Fills {
		_, err := s.fills.Append(ctx, map[string]interface{}{
			"maker_order_hash": hexID(f.MakerOrderHash),
			"taker_order_hash": hexID(f.TakerOrderHash),
			"maker_owner":      hexID(f.MakerOwner),
			"taker_owner":      hexID(f.TakerOwner),
			"market":           hexID(f.Market),
			"token_id":         strconv.FormatUint(uint64(f.TokenID), 10),
			"side":             strconv.FormatUint(uint64(f.Side), 10),
			"price":            strconv.FormatUint(f.Price, 10),
			"size":             strconv.FormatUint(f.Size, 10),
			"timestamp_ms":     strconv.FormatInt(f.TimestampMs, 10),
		})
		if err != nil {
			s.log.Error("publish fill event failed", zap.Error(err))
		}
		if s.hub != nil {
			s.hub.Publish(realtime.MarketChannel(hexID(f.Market)), "trade", map[string]interface{}{
				"price":       f.Price,
				"size":        f.Size,
				"side":        f.Side,
				"tokenId":     f.TokenID,
				"timestampMs": f.TimestampMs,
			})
		}
	}

	for _, job := range result.Jobs {
		encoded, err := settlement.EncodeJob(job)
		if err != nil {
			s.log.Error("encode settlement job failed", zap.Error(err))
			continue
		}
		if err := s.queue.Push(ctx, encoded); err != nil {
			s.log.Error("enqueue settlement job failed", zap.Error(err))
		}
	}
}

// handleOperatorMatch lets the settlement worker or a test express an
// explicit crossing between a taker and its makers, applying the same
// CAS decrement obstore.Store.Decrement uses so a manually-specified
// match can never oversell a resting order. It is not reachable from
// ordinary order intake.
func (s *Server) handleOperatorMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req operatorMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidOrder, "malformed request body", err))
		return
	}
	if len(req.MakerOrders) == 0 {
		respondError(w, apierr.New(apierr.CodeValidationError, "at least one maker order is required"))
		return
	}
	if len(req.MakerOrders) > matching.MaxBatchLegs {
		respondError(w, apierr.New(apierr.CodeValidationError, "too many maker legs in one match"))
		return
	}

	taker, err := req.TakerOrder.toOrder()
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInvalidOrder, "malformed taker order", err))
		return
	}
	takerHash := order.Hash(taker)

	makers := make([]order.Order, 0, len(req.MakerOrders))
	makerHashes := make([][32]byte, 0, len(req.MakerOrders))
	for _, wm := range req.MakerOrders {
		m, err := wm.toOrder()
		if err != nil {
			respondError(w, apierr.Wrap(apierr.CodeInvalidOrder, "malformed maker order", err))
			return
		}
		makers = append(makers, m)
		makerHashes = append(makerHashes, order.Hash(m))
	}

	makerFillAmounts := make([]uint64, len(makers))
	var takerFillAmount uint64
	if len(req.MakerFillAmounts) == len(makers) {
		for i, amountStr := range req.MakerFillAmounts {
			v, err := strconv.ParseUint(amountStr, 10, 64)
			if err != nil {
				respondError(w, apierr.Wrap(apierr.CodeValidationError, "malformed maker fill amount", err))
				return
			}
			makerFillAmounts[i] = v
			takerFillAmount += v
		}
	} else {
		for i := range makers {
			rec, err := s.store.Get(ctx, makerHashes[i])
			if err != nil {
				respondError(w, apierr.Wrap(apierr.CodeValidationError, "maker order is not resting", err))
				return
			}
			makerFillAmounts[i] = rec.RemainingAmount
			takerFillAmount += rec.RemainingAmount
		}
	}
	if req.TakerFillAmount != "" {
		v, err := strconv.ParseUint(req.TakerFillAmount, 10, 64)
		if err != nil {
			respondError(w, apierr.Wrap(apierr.CodeValidationError, "malformed taker fill amount", err))
			return
		}
		takerFillAmount = v
	}

	for i, hash := range makerHashes {
		if _, _, ok, err := s.store.Decrement(ctx, hash, makerFillAmounts[i]); err != nil || !ok {
			respondError(w, apierr.New(apierr.CodeValidationError, "maker leg could not be reserved"))
			return
		}
	}

	job := matching.Job{
		TakerOrderHash:   takerHash,
		TakerFillAmount:  takerFillAmount,
		MakerOrderHashes: makerHashes,
		MakerFillAmounts: makerFillAmounts,
	}
	encoded, err := settlement.EncodeJob(job)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeInternal, "failed to encode match job", err))
		return
	}
	if err := s.queue.Push(ctx, encoded); err != nil {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "settlement queue unavailable", err))
		return
	}

	hashStrings := make([]string, len(makerHashes))
	for i, h := range makerHashes {
		hashStrings[i] = order.FingerprintString(h)
	}
	respondJSON(w, http.StatusOK, operatorMatchResponse{
		TakerOrderHash: order.FingerprintString(takerHash),
		MakerOrderHash: hashStrings,
		Status:         "queued",
	})
}
