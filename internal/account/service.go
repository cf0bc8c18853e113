package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/clearledger/internal/ledger"
)

const (
	defaultCurrency  = "EUR"
	numberAttempts   = 5
	validCurrencyLen = 3
)

// Service exposes account lifecycle operations. Balance reads go through the
// ledger, which is the only component allowed to mutate them.
type Service struct {
	repo    Repository
	ledger  ledger.Ledger
	numbers NumberGenerator
	logger  *slog.Logger
}

// NewService builds an account service instance.
func NewService(repo Repository, led ledger.Ledger, numbers NumberGenerator, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: led, numbers: numbers, logger: logger}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	OwnerID  string
	Type     string
	Currency string
}

// Create opens a zero-balance account with a generated unique number. A number
// collision is resolved by regenerating, bounded to a few attempts since the
// unique constraint makes collisions rare.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Account{}, fmt.Errorf("invalid owner id: %w", err)
	}
	if !ValidType(input.Type) {
		return Account{}, fmt.Errorf("invalid account type %q", input.Type)
	}
	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != validCurrencyLen {
		return Account{}, fmt.Errorf("invalid currency %q", currency)
	}

	now := time.Now().UTC()
	acct := Account{
		ID:           uuid.NewString(),
		OwnerID:      input.OwnerID,
		Type:         input.Type,
		BalanceCents: 0,
		Currency:     currency,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for attempt := 0; attempt < numberAttempts; attempt++ {
		acct.Number = s.numbers()
		err := s.repo.Create(ctx, acct)
		if err == nil {
			s.logger.Info("account created", "account_id", acct.ID, "owner_id", acct.OwnerID, "type", acct.Type)
			return acct, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return Account{}, err
		}
		s.logger.Warn("account number collision, regenerating", "attempt", attempt+1)
	}
	return Account{}, fmt.Errorf("could not allocate a unique account number after %d attempts", numberAttempts)
}

// Get returns the account if it belongs to requesterID. Foreign accounts are
// indistinguishable from absent ones.
func (s *Service) Get(ctx context.Context, id, requesterID string) (Account, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acct.OwnerID != requesterID {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// List returns all accounts owned by requesterID.
func (s *Service) List(ctx context.Context, requesterID string) ([]Account, error) {
	return s.repo.ListByOwner(ctx, requesterID)
}

// Balance returns the ledger balance for an owned account.
func (s *Service) Balance(ctx context.Context, id, requesterID string) (int64, error) {
	if _, err := s.Get(ctx, id, requesterID); err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, id)
}

// Suspend moves an owned account to suspended.
func (s *Service) Suspend(ctx context.Context, id, requesterID string) (Account, error) {
	return s.setStatus(ctx, id, requesterID, StatusSuspended)
}

// Activate moves an owned account back to active.
func (s *Service) Activate(ctx context.Context, id, requesterID string) (Account, error) {
	return s.setStatus(ctx, id, requesterID, StatusActive)
}

// Close moves an owned account to the terminal closed status.
func (s *Service) Close(ctx context.Context, id, requesterID string) (Account, error) {
	return s.setStatus(ctx, id, requesterID, StatusClosed)
}

func (s *Service) setStatus(ctx context.Context, id, requesterID, status string) (Account, error) {
	acct, err := s.Get(ctx, id, requesterID)
	if err != nil {
		return Account{}, err
	}
	if acct.Status == StatusClosed {
		return Account{}, ErrClosed
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return Account{}, err
	}
	s.logger.Info("account status changed", "account_id", id, "status", status)
	return s.repo.Get(ctx, id)
}
