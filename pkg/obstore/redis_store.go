package obstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// decrementScript is the server-side Lua CAS the spec requires for
// `decrement`: it reads the current remaining amount and only writes a
// new value if it is at least delta, so two matchers racing the same
// fingerprint can never oversell it.
const decrementScript = `
local key = KEYS[1]
local delta = tonumber(ARGV[1])
local remaining = tonumber(redis.call('HGET', key, 'remaining'))
if remaining == nil then
  return {-1, ''}
end
if remaining < delta then
  return {0, tostring(remaining)}
end
local newRemaining = remaining - delta
local filled = tonumber(redis.call('HGET', key, 'filled')) + delta
local status = 'partial'
if newRemaining == 0 then
  status = 'matched'
end
redis.call('HSET', key, 'remaining', newRemaining, 'filled', filled, 'status', status)
return {1, tostring(newRemaining) .. ':' .. status}
`

// RedisStore implements Store against Redis: sorted sets for the
// per-(market,token,side) ordered index, hashes for each order
// record, and a set per maker for cancellation/reconciliation — the
// layout spec.md §4.2/§6 names.
type RedisStore struct {
	rdb      *redis.Client
	decrSHA  string
	loadOnce bool
}

// NewRedisStore wraps an existing Redis client. Call LoadScripts once
// at startup to register the CAS decrement script.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// LoadScripts registers the Lua CAS script with Redis; call this once
// after connecting, before serving traffic.
func (s *RedisStore) LoadScripts(ctx context.Context) error {
	sha, err := s.rdb.ScriptLoad(ctx, decrementScript).Result()
	if err != nil {
		return fmt.Errorf("obstore: load decrement script: %w", err)
	}
	s.decrSHA = sha
	s.loadOnce = true
	return nil
}

func orderKey(hash [32]byte) string {
	return "order:" + hex.EncodeToString(hash[:])
}

func bookKeyFor(market [32]byte, token uint8, side Side) string {
	suffix := "bids"
	if side == SideAsk {
		suffix = "asks"
	}
	return fmt.Sprintf("ob:%s:%d:%s", hex.EncodeToString(market[:]), token, suffix)
}

func userKey(maker [32]byte) string {
	return "user:" + hex.EncodeToString(maker[:]) + ":orders"
}

// score encodes price as a sortable float64; BUY scores are negated so
// ZRANGE ascending still yields highest-price-first. Price alone is
// not enough to order the book correctly: same-price orders must
// still tiebreak on arrival time, which member encodes (see member
// below), since Redis breaks ties on equal scores by comparing members
// lexicographically rather than by insertion order.
func score(side Side, price uint64) float64 {
	if side == SideBid {
		return -float64(price)
	}
	return float64(price)
}

// arrivalHexLen is the fixed hex width of the zero-padded microsecond
// arrival prefix on each sorted-set member.
const arrivalHexLen = 16

// member builds the sorted-set entry for hash: a zero-padded hex
// encoding of its arrival time in microseconds, followed by the order
// hash itself. Two members with equal ZADD scores (same price) are
// then ordered lexicographically by Redis, which — because the
// arrival prefix is fixed-width and zero-padded — sorts earlier
// arrivals first with microsecond resolution; a tie on arrival (the
// same microsecond) falls through to the lexicographic order hash
// that follows it, matching spec.md's tiebreaker rule exactly.
func member(hash [32]byte, arrival time.Time) string {
	return fmt.Sprintf("%0*x%s", arrivalHexLen, uint64(arrival.UnixMicro()), hex.EncodeToString(hash[:]))
}

// hashFromMember recovers the order hash from a member built by
// member, discarding the arrival-time prefix.
func hashFromMember(m string) ([32]byte, bool) {
	var hash [32]byte
	if len(m) != arrivalHexLen+64 {
		return hash, false
	}
	raw, err := hex.DecodeString(m[arrivalHexLen:])
	if err != nil || len(raw) != 32 {
		return hash, false
	}
	copy(hash[:], raw)
	return hash, true
}

// Insert writes the record hash, adds it to the side sorted set, adds
// it to the maker's set, and sets a TTL derived from expiration. Since
// Redis hash writes are idempotent, re-inserting the same fingerprint
// is naturally a no-op for the fields that matter (price, owner); we
// guard explicitly with HSETNX on a sentinel field to avoid clobbering
// in-flight fill state on a racing duplicate submission.
func (s *RedisStore) Insert(ctx context.Context, rec Record) error {
	key := orderKey(rec.OrderHash)

	created, err := s.rdb.HSetNX(ctx, key, "created", "1").Result()
	if err != nil {
		return fmt.Errorf("obstore: insert hsetnx: %w", err)
	}
	if !created {
		return nil
	}

	ser := order.Serialize(rec.Order)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"order", hex.EncodeToString(ser[:]),
		"signature", hex.EncodeToString(rec.Signature),
		"status", string(rec.Status),
		"filled", rec.FilledAmount,
		"remaining", rec.RemainingAmount,
		"createdAt", rec.CreatedAt.UnixMicro(),
		"maker", hex.EncodeToString(rec.Order.Maker[:]),
	)

	side := SideOf(rec.Order.Side)
	price := order.Price(rec.Order)
	pipe.ZAdd(ctx, bookKeyFor(rec.Order.Market, rec.Order.TokenID, side), redis.Z{
		Score:  score(side, price),
		Member: member(rec.OrderHash, rec.CreatedAt),
	})
	pipe.SAdd(ctx, userKey(rec.Order.Maker), hex.EncodeToString(rec.OrderHash[:]))

	if rec.Order.Expiration > 0 {
		ttl := time.Until(time.Unix(rec.Order.Expiration, 0))
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("obstore: insert pipeline: %w", err)
	}
	return nil
}

// BestN returns up to n best-priced open orders by scanning the sorted
// set in score order (already highest/lowest-first per the negated
// BUY score) and hydrating each hash's record.
func (s *RedisStore) BestN(ctx context.Context, market [32]byte, token uint8, side Side, n int) ([]BestEntry, error) {
	key := bookKeyFor(market, token, side)
	members, err := s.rdb.ZRangeWithScores(ctx, key, 0, int64(n*4)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("obstore: bestN zrange: %w", err)
	}

	var out []BestEntry
	for _, m := range members {
		memberStr, _ := m.Member.(string)
		hash, ok := hashFromMember(memberStr)
		if !ok {
			continue
		}

		rec, err := s.Get(ctx, hash)
		if err != nil || rec.RemainingAmount == 0 {
			continue
		}
		price := order.Price(rec.Order)
		out = append(out, BestEntry{
			OrderHash:       hash,
			Price:           price,
			RemainingAmount: rec.RemainingAmount,
			Owner:           rec.Order.Maker,
		})
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

// Decrement runs the CAS Lua script. It sends the script body with EVAL
// on every call rather than EVALSHA, so it does not depend on
// LoadScripts and stays correct across a Redis restart that flushed the
// script cache.
func (s *RedisStore) Decrement(ctx context.Context, hash [32]byte, delta uint64) (uint64, Status, bool, error) {
	key := orderKey(hash)
	res, err := s.rdb.Eval(ctx, decrementScript, []string{key}, delta).Result()
	if err != nil {
		return 0, "", false, fmt.Errorf("obstore: decrement eval: %w", err)
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, "", false, fmt.Errorf("obstore: unexpected decrement script result")
	}
	code, _ := arr[0].(int64)
	if code == -1 {
		return 0, "", false, order.ErrNotFound
	}
	if code == 0 {
		remaining, _ := strconv.ParseUint(fmt.Sprint(arr[1]), 10, 64)
		rec, _ := s.Get(ctx, hash)
		return remaining, rec.Status, false, nil
	}

	payload, _ := arr[1].(string)
	var remainingStr, statusStr string
	for i := 0; i < len(payload); i++ {
		if payload[i] == ':' {
			remainingStr, statusStr = payload[:i], payload[i+1:]
			break
		}
	}
	remaining, _ := strconv.ParseUint(remainingStr, 10, 64)
	status := Status(statusStr)

	if status == StatusMatched {
		rec, err := s.Get(ctx, hash)
		if err == nil {
			side := SideOf(rec.Order.Side)
			s.rdb.ZRem(ctx, bookKeyFor(rec.Order.Market, rec.Order.TokenID, side), member(hash, rec.CreatedAt))
		}
	}

	return remaining, status, true, nil
}

// Remove drops an order from its side sorted set and the maker's set.
func (s *RedisStore) Remove(ctx context.Context, hash [32]byte, cancelled bool) error {
	rec, err := s.Get(ctx, hash)
	if err != nil {
		return nil
	}
	side := SideOf(rec.Order.Side)

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, bookKeyFor(rec.Order.Market, rec.Order.TokenID, side), member(hash, rec.CreatedAt))
	pipe.SRem(ctx, userKey(rec.Order.Maker), hex.EncodeToString(hash[:]))
	if cancelled {
		pipe.HSet(ctx, orderKey(hash), "status", string(StatusCancelled))
	} else {
		pipe.Del(ctx, orderKey(hash))
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("obstore: remove pipeline: %w", err)
	}
	return nil
}

// Get fetches and decodes a full record from its hash.
func (s *RedisStore) Get(ctx context.Context, hash [32]byte) (Record, error) {
	fields, err := s.rdb.HGetAll(ctx, orderKey(hash)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("obstore: get hgetall: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, order.ErrNotFound
	}

	rawOrder, err := hex.DecodeString(fields["order"])
	if err != nil {
		return Record{}, fmt.Errorf("obstore: decode order hex: %w", err)
	}
	o, err := order.Deserialize(rawOrder)
	if err != nil {
		return Record{}, fmt.Errorf("obstore: deserialize order: %w", err)
	}
	sig, _ := hex.DecodeString(fields["signature"])

	filled, _ := strconv.ParseUint(fields["filled"], 10, 64)
	remaining, _ := strconv.ParseUint(fields["remaining"], 10, 64)
	createdMicros, _ := strconv.ParseInt(fields["createdAt"], 10, 64)

	return Record{
		OrderHash:       hash,
		Order:           o,
		Signature:       sig,
		Status:          Status(fields["status"]),
		FilledAmount:    filled,
		RemainingAmount: remaining,
		CreatedAt:       time.UnixMicro(createdMicros),
	}, nil
}

// SetStatus overwrites the terminal status field after settlement
// succeeds or exhausts its retries; the order has already left the
// side sorted set by the time this runs.
func (s *RedisStore) SetStatus(ctx context.Context, hash [32]byte, status Status) error {
	key := orderKey(hash)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("obstore: setStatus exists: %w", err)
	}
	if n == 0 {
		return order.ErrNotFound
	}
	if err := s.rdb.HSet(ctx, key, "status", string(status)).Err(); err != nil {
		return fmt.Errorf("obstore: setStatus hset: %w", err)
	}
	return nil
}

// UserOrders lists the outstanding fingerprints for a maker.
func (s *RedisStore) UserOrders(ctx context.Context, maker [32]byte) ([][32]byte, error) {
	members, err := s.rdb.SMembers(ctx, userKey(maker)).Result()
	if err != nil {
		return nil, fmt.Errorf("obstore: user orders smembers: %w", err)
	}
	out := make([][32]byte, 0, len(members))
	for _, m := range members {
		raw, err := hex.DecodeString(m)
		if err != nil || len(raw) != 32 {
			continue
		}
		var h [32]byte
		copy(h[:], raw)
		out = append(out, h)
	}
	return out, nil
}
