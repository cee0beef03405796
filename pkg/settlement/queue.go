// Package settlement implements the settlement worker (C5): it drains
// match jobs produced by pkg/matching, submits one batched Solana
// transaction per job (up to matching.MaxBatchLegs maker legs), and
// retries with exponential backoff before giving up. The poll/retry
// shape is grounded on the keeper reference service's ticking loop and
// send-then-confirm transaction helpers.
package settlement

import (
	"context"
	"time"
)

// Queue is the match-job queue the matching engine publishes onto and
// the settlement worker drains, with reserve-then-ack semantics: a
// reserved job is invisible to other consumers until acked or nacked.
// A crashed worker's in-flight jobs stay in its in-flight set; neither
// implementation moves them back onto the main queue by itself.
type Queue interface {
	// Push enqueues an encoded job.
	Push(ctx context.Context, job []byte) error

	// Reserve blocks up to block for the next available job, marking it
	// in-flight for consumer. ok is false on a timeout with no error.
	Reserve(ctx context.Context, consumer string, block time.Duration) (job []byte, ok bool, err error)

	// Ack permanently removes a reserved job after successful
	// settlement.
	Ack(ctx context.Context, consumer string, job []byte) error

	// Nack returns a reserved job to the head of the main queue for
	// another attempt.
	Nack(ctx context.Context, consumer string, job []byte) error

	// Fail moves a job that exhausted its retries onto a dead-letter
	// list for manual inspection, removing it from consumer's in-flight
	// set.
	Fail(ctx context.Context, consumer string, job []byte) error
}
