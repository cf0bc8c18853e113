package account

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/clearledger/internal/ledger"
	"github.com/clearledger/clearledger/internal/logging"
)

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	led := ledger.NewMemory(repo, time.Second)
	svc := NewService(repo, led, IBANNumbers(rand.NewSource(1)), logging.Discard())
	return svc, repo
}

func TestCreateOpensZeroBalanceAccount(t *testing.T) {
	svc, _ := newTestService()
	ownerID := uuid.NewString()

	acct, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID, Type: TypeChecking})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if acct.BalanceCents != 0 {
		t.Fatalf("new account must start at zero, got %d", acct.BalanceCents)
	}
	if acct.Status != StatusActive {
		t.Fatalf("expected active status, got %s", acct.Status)
	}
	if acct.Currency != "EUR" {
		t.Fatalf("expected default EUR currency, got %s", acct.Currency)
	}
	if !strings.HasPrefix(acct.Number, "FR76") || len(acct.Number) != 27 {
		t.Fatalf("unexpected account number %q", acct.Number)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: "not-a-uuid", Type: TypeChecking}); err == nil {
		t.Fatal("expected error for invalid owner id")
	}
	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString(), Type: "premium"}); err == nil {
		t.Fatal("expected error for unknown account type")
	}
	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString(), Type: TypeSavings, Currency: "EURO"}); err == nil {
		t.Fatal("expected error for malformed currency")
	}
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	repo := NewMemoryRepository()
	led := ledger.NewMemory(repo, time.Second)

	// First two candidates collide with an existing number, third is unique.
	numbers := []string{"FR76AAAA", "FR76AAAA", "FR76BBBB"}
	i := 0
	gen := NumberGenerator(func() string {
		n := numbers[i]
		i++
		return n
	})
	svc := NewService(repo, led, gen, logging.Discard())

	seed := Account{ID: uuid.NewString(), OwnerID: uuid.NewString(), Number: "FR76AAAA", Type: TypeChecking, Currency: "EUR", Status: StatusActive}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	acct, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString(), Type: TypeChecking})
	if err != nil {
		t.Fatalf("create after collision: %v", err)
	}
	if acct.Number != "FR76BBBB" {
		t.Fatalf("expected regenerated number, got %q", acct.Number)
	}
}

// wrappingRepo wraps repository errors the way a store adding context would.
type wrappingRepo struct {
	*MemoryRepository
}

func (r *wrappingRepo) Create(ctx context.Context, acct Account) error {
	if err := r.MemoryRepository.Create(ctx, acct); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func TestCreateRetriesOnWrappedCollision(t *testing.T) {
	inner := NewMemoryRepository()
	led := ledger.NewMemory(inner, time.Second)

	numbers := []string{"FR76AAAA", "FR76BBBB"}
	i := 0
	gen := NumberGenerator(func() string {
		n := numbers[i]
		i++
		return n
	})
	svc := NewService(&wrappingRepo{MemoryRepository: inner}, led, gen, logging.Discard())

	seed := Account{ID: uuid.NewString(), OwnerID: uuid.NewString(), Number: "FR76AAAA", Type: TypeChecking, Currency: "EUR", Status: StatusActive}
	if err := inner.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	acct, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString(), Type: TypeChecking})
	if err != nil {
		t.Fatalf("create after wrapped collision: %v", err)
	}
	if acct.Number != "FR76BBBB" {
		t.Fatalf("expected regenerated number, got %q", acct.Number)
	}
}

func TestGetHidesForeignAccounts(t *testing.T) {
	svc, _ := newTestService()
	ownerID := uuid.NewString()

	acct, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID, Type: TypeChecking})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(context.Background(), acct.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign account must look absent, got %v", err)
	}
	if _, err := svc.Get(context.Background(), acct.ID, ownerID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
}

func TestBalanceReadsThroughLedger(t *testing.T) {
	svc, _ := newTestService()
	ownerID := uuid.NewString()

	acct, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID, Type: TypeChecking})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	balance, err := svc.Balance(context.Background(), acct.ID, ownerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}

	if _, err := svc.Balance(context.Background(), acct.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign balance read must fail, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := newTestService()
	ownerID := uuid.NewString()
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateInput{OwnerID: ownerID, Type: TypeChecking})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	suspended, err := svc.Suspend(ctx, acct.ID, ownerID)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if suspended.Status != StatusSuspended {
		t.Fatalf("expected suspended, got %s", suspended.Status)
	}

	activated, err := svc.Activate(ctx, acct.ID, ownerID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Status != StatusActive {
		t.Fatalf("expected active, got %s", activated.Status)
	}

	closed, err := svc.Close(ctx, acct.ID, ownerID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("expected closed, got %s", closed.Status)
	}

	// Closed is terminal.
	if _, err := svc.Activate(ctx, acct.ID, ownerID); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on reactivation, got %v", err)
	}
}

func TestMaskNumber(t *testing.T) {
	masked := MaskNumber("FR7612345678901234567890123")
	if masked != "FR76****0123" {
		t.Fatalf("unexpected mask %q", masked)
	}
	if MaskNumber("short") != "short" {
		t.Fatalf("short numbers must pass through")
	}
}
