package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisGuard(client, ttl), mr
}

func TestRedisGuardFreshThenReplay(t *testing.T) {
	g, _ := newRedisGuard(t, time.Minute)
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

func TestRedisGuardInProgressRace(t *testing.T) {
	g, _ := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := g.CheckAndReserve(ctx, "key-1")
	if !errors.Is(err, ErrReservationRace) {
		t.Fatalf("expected ErrReservationRace, got %v", err)
	}
}

func TestRedisGuardReleaseFreesKey(t *testing.T) {
	g, _ := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("re-reserve: %v", err)
	}
	if !res.Fresh {
		t.Fatal("released key must be reservable again")
	}
}

func TestRedisGuardExpiryViaTTL(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	if _, err := g.CheckAndReserve(ctx, "key-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.SaveResult(ctx, "key-1", "pay-1", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	res, err := g.CheckAndReserve(ctx, "key-1")
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if !res.Fresh {
		t.Fatal("expired key must behave as never seen")
	}
}
