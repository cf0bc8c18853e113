package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrReservationRace indicates another caller holds the reservation for this
	// key but has not stored its result yet. Retryable after a short wait.
	ErrReservationRace = errors.New("idempotency key reservation in progress")
)

// Result is the outcome of CheckAndReserve. Fresh means the caller won the
// reservation and must later call SaveResult or Release. Otherwise ResourceID
// and Response replay the stored outcome of the first call.
type Result struct {
	Fresh      bool
	ResourceID string
	Response   []byte
}

// Record is a stored idempotency outcome.
type Record struct {
	Key        string
	ResourceID string
	Response   []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Guard deduplicates externally-retried creation requests. Reservation is
// atomic with respect to concurrent callers on the same key: exactly one
// caller observes Fresh; the rest see the stored result once it exists, or
// ErrReservationRace while it does not.
type Guard interface {
	CheckAndReserve(ctx context.Context, key string) (Result, error)
	SaveResult(ctx context.Context, key, resourceID string, response []byte) error
	Release(ctx context.Context, key string) error
}
