// Package streams wraps Redis Streams to provide the append/readGroup/
// claimPending/ack operations spec.md §4.4 calls for. One Stream value
// per stream name (stream:orders, stream:fills, stream:deposits,
// stream:withdrawals); all four share this implementation.
package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Well-known stream names.
const (
	Orders      = "stream:orders"
	Fills       = "stream:fills"
	Deposits    = "stream:deposits"
	Withdrawals = "stream:withdrawals"
)

// DefaultIdle is the pending-message age at which claimPending may
// reassign a message to a new consumer.
const DefaultIdle = 60 * time.Second

// Message is one entry read back from a stream.
type Message struct {
	ID     string
	Fields map[string]interface{}
}

// Stream is a thin, name-scoped wrapper around a shared Redis client.
type Stream struct {
	rdb  *redis.Client
	name string
}

// New returns a Stream bound to name on rdb.
func New(rdb *redis.Client, name string) *Stream {
	return &Stream{rdb: rdb, name: name}
}

// Name returns the underlying Redis key this Stream is bound to.
func (s *Stream) Name() string { return s.name }

// EnsureGroup creates the consumer group if it doesn't already exist,
// starting from the beginning of the stream ($ would skip backlog).
func (s *Stream) EnsureGroup(ctx context.Context, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.name, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("streams: ensure group %s/%s: %w", s.name, group, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

// Append adds fields as a new entry and returns its assigned message
// ID, which is totally ordered and monotonically increasing within
// this stream.
func (s *Stream) Append(ctx context.Context, fields map[string]interface{}) (string, error) {
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("streams: append to %s: %w", s.name, err)
	}
	return id, nil
}

// ReadGroup reads messages not yet delivered to this consumer group,
// blocking up to blockMs for new entries.
func (s *Stream) ReadGroup(ctx context.Context, group, consumer string, count int64, blockMs time.Duration) ([]Message, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.name, ">"},
		Count:    count,
		Block:    blockMs,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("streams: readGroup %s/%s: %w", s.name, group, err)
	}
	return flatten(res), nil
}

// ClaimPending reassigns messages idle longer than idleMs from other
// consumers in the group to this consumer, for crash recovery.
func (s *Stream) ClaimPending(ctx context.Context, group, consumer string, idle time.Duration, count int64) ([]Message, error) {
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.name,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   idle,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("streams: xpending %s/%s: %w", s.name, group, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := s.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.name,
		Group:    group,
		Consumer: consumer,
		MinIdle:  idle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("streams: xclaim %s/%s: %w", s.name, group, err)
	}

	out := make([]Message, len(claimed))
	for i, m := range claimed {
		out[i] = Message{ID: m.ID, Fields: m.Values}
	}
	return out, nil
}

// Ack acknowledges a message, removing it from the group's pending
// entries list.
func (s *Stream) Ack(ctx context.Context, group, id string) error {
	if err := s.rdb.XAck(ctx, s.name, group, id).Err(); err != nil {
		return fmt.Errorf("streams: ack %s/%s/%s: %w", s.name, group, id, err)
	}
	return nil
}

func flatten(res []redis.XStream) []Message {
	var out []Message
	for _, xs := range res {
		for _, m := range xs.Messages {
			out = append(out, Message{ID: m.ID, Fields: m.Values})
		}
	}
	return out
}
