package ledger

import (
	"context"
	"sync"
	"time"
)

// Locker provides per-account exclusive locks with a bounded wait. Locks for a
// pair of accounts are always taken in ascending id order, so two transfers in
// opposite directions acquire them identically and cannot deadlock.
type Locker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

// NewLocker builds an empty lock table.
func NewLocker() *Locker {
	return &Locker{sems: make(map[string]chan struct{})}
}

func (l *Locker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

func (l *Locker) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	s := l.sem(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithAccount runs fn while holding the exclusive lock for accountID. The lock
// is released on every exit path, including panics inside fn.
func (l *Locker) WithAccount(ctx context.Context, accountID string, wait time.Duration, fn func() error) error {
	release, err := l.acquire(ctx, accountID, wait)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// WithAccountPair runs fn while holding both account locks, acquired in
// canonical (ascending id) order regardless of argument order.
func (l *Locker) WithAccountPair(ctx context.Context, a, b string, wait time.Duration, fn func() error) error {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := l.acquire(ctx, first, wait)
	if err != nil {
		return err
	}
	defer releaseFirst()

	releaseSecond, err := l.acquire(ctx, second, wait)
	if err != nil {
		return err
	}
	defer releaseSecond()

	return fn()
}
