package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryGuardFreshThenReplay(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !res.Fresh {
		t.Fatal("first caller must win the reservation")
	}

	if err := g.SaveResult(ctx, "key-1", "pay-42", []byte(`{"id":"pay-42"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	replay, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Fresh {
		t.Fatal("second caller must not win the reservation")
	}
	if replay.ResourceID != "pay-42" {
		t.Fatalf("expected stored resource id, got %q", replay.ResourceID)
	}
	if string(replay.Response) != `{"id":"pay-42"}` {
		t.Fatalf("expected stored response, got %q", replay.Response)
	}
}

func TestMemoryGuardReservationRace(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Reserved but no result yet: concurrent caller must back off, not proceed.
	_, err := g.CheckAndReserve(ctx, "key-1")
	if !errors.Is(err, ErrReservationRace) {
		t.Fatalf("expected ErrReservationRace, got %v", err)
	}
}

func TestMemoryGuardExactlyOneWinner(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	fresh := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.CheckAndReserve(ctx, "shared")
			if err != nil {
				if !errors.Is(err, ErrReservationRace) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			fresh <- res.Fresh
		}()
	}
	wg.Wait()
	close(fresh)

	winners := 0
	for f := range fresh {
		if f {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one fresh winner, got %d", winners)
	}
}

func TestMemoryGuardReleaseFreesKey(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("re-reserve after release: %v", err)
	}
	if !res.Fresh {
		t.Fatal("released key must be reservable again")
	}
}

func TestMemoryGuardReleaseKeepsStoredResult(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.SaveResult(ctx, "key-1", "pay-1", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := g.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Fresh || res.ResourceID != "pay-1" {
		t.Fatalf("stored result must survive release, got %+v", res)
	}
}

func TestMemoryGuardExpiredKeyBehavesAsNew(t *testing.T) {
	g := NewMemoryGuard(10 * time.Millisecond)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.SaveResult(ctx, "key-1", "pay-1", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("reserve expired key: %v", err)
	}
	if !res.Fresh {
		t.Fatal("expired key must behave as never seen")
	}
}

func TestMemoryGuardSweepRemovesExpired(t *testing.T) {
	g := NewMemoryGuard(10 * time.Millisecond)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := g.CheckAndReserve(ctx, key); err != nil {
			t.Fatalf("reserve %s: %v", key, err)
		}
		if err := g.SaveResult(ctx, key, key, []byte("{}")); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}

	if removed := g.Sweep(time.Now().UTC()); removed != 0 {
		t.Fatalf("nothing should be expired yet, removed %d", removed)
	}

	time.Sleep(20 * time.Millisecond)

	if removed := g.Sweep(time.Now().UTC()); removed != 3 {
		t.Fatalf("expected 3 swept records, got %d", removed)
	}
	if removed := g.Sweep(time.Now().UTC()); removed != 0 {
		t.Fatalf("second sweep must be a no-op, removed %d", removed)
	}
}
