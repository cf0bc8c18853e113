package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryRecord struct {
	record   Record
	reserved bool
	stored   bool
}

// MemoryGuard keeps reservations and results in process memory. Expired
// records are invisible to lookups immediately and physically deleted by the
// sweeper outside the request path.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	ttl     time.Duration
}

// NewMemoryGuard builds an empty in-memory guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{records: make(map[string]*memoryRecord), ttl: ttl}
}

// CheckAndReserve atomically claims the key or replays the stored result.
func (g *MemoryGuard) CheckAndReserve(_ context.Context, key string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := g.records[key]
	if ok && rec.record.ExpiresAt.Before(now) {
		// Expired keys behave as never seen.
		delete(g.records, key)
		ok = false
	}
	if ok {
		if !rec.stored {
			return Result{}, ErrReservationRace
		}
		return Result{ResourceID: rec.record.ResourceID, Response: rec.record.Response}, nil
	}

	g.records[key] = &memoryRecord{
		record:   Record{Key: key, CreatedAt: now, ExpiresAt: now.Add(g.ttl)},
		reserved: true,
	}
	return Result{Fresh: true}, nil
}

// SaveResult persists the outcome under the key.
func (g *MemoryGuard) SaveResult(_ context.Context, key, resourceID string, response []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := g.records[key]
	if !ok {
		rec = &memoryRecord{record: Record{Key: key, CreatedAt: now}}
		g.records[key] = rec
	}
	rec.record.ResourceID = resourceID
	rec.record.Response = response
	rec.record.ExpiresAt = now.Add(g.ttl)
	rec.stored = true
	return nil
}

// Release drops a reservation whose operation failed. Stored results are kept.
func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[key]; ok && !rec.stored {
		delete(g.records, key)
	}
	return nil
}

// Sweep deletes expired records and returns how many were removed.
func (g *MemoryGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, rec := range g.records {
		if rec.record.ExpiresAt.Before(now) {
			delete(g.records, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (g *MemoryGuard) StartSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := g.Sweep(time.Now().UTC()); removed > 0 {
					logger.Info("idempotency records swept", "removed", removed)
				}
			}
		}
	}()
}
