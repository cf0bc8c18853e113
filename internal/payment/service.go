package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/clearledger/internal/account"
	"github.com/clearledger/clearledger/internal/events"
	"github.com/clearledger/clearledger/internal/gateway"
	"github.com/clearledger/clearledger/internal/idempotency"
)

var (
	// ErrMissingKey indicates the creation request carried no idempotency key.
	ErrMissingKey = errors.New("idempotency key is required")

	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidMethod indicates an unsupported payment method.
	ErrInvalidMethod = errors.New("unsupported payment method")
)

const (
	defaultCurrency = "EUR"
	publishTimeout  = 5 * time.Second
)

// Service creates and confirms payments. Creation is protected by the
// idempotency guard: the same key replays the stored receipt instead of
// creating a second charge.
type Service struct {
	repo      Repository
	accounts  account.Repository
	guard     idempotency.Guard
	gateway   gateway.Gateway
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(repo Repository, accounts account.Repository, guard idempotency.Guard, gw gateway.Gateway, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accounts, guard: guard, gateway: gw, publisher: publisher, logger: logger}
}

// CreateInput captures a payment creation request.
type CreateInput struct {
	RequesterID    string
	AccountID      string
	AmountCents    int64
	Currency       string
	Method         string
	Description    string
	IdempotencyKey string
}

// Receipt is the caller-facing payment record. It is also the payload stored
// by the guard and replayed verbatim on duplicate keys.
type Receipt struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	AccountID     string     `json:"account_id"`
	ChargeID      string     `json:"charge_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	Description   string     `json:"description"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Create makes a payment at most once per idempotency key. The first call
// creates the remote charge and persists the payment; replays return the
// stored receipt without touching the gateway. Replayed reports which case
// occurred.
func (s *Service) Create(ctx context.Context, input CreateInput) (receipt Receipt, replayed bool, err error) {
	if input.IdempotencyKey == "" {
		return Receipt{}, false, ErrMissingKey
	}
	if input.AmountCents <= 0 {
		return Receipt{}, false, ErrInvalidAmount
	}
	if !ValidMethod(input.Method) {
		return Receipt{}, false, ErrInvalidMethod
	}
	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	acct, err := s.accounts.Get(ctx, input.AccountID)
	if err != nil {
		return Receipt{}, false, err
	}
	if acct.OwnerID != input.RequesterID {
		return Receipt{}, false, account.ErrNotFound
	}

	res, err := s.guard.CheckAndReserve(ctx, input.IdempotencyKey)
	if err != nil {
		return Receipt{}, false, err
	}
	if !res.Fresh {
		var stored Receipt
		if err := json.Unmarshal(res.Response, &stored); err != nil {
			return Receipt{}, false, fmt.Errorf("decode stored receipt: %w", err)
		}
		s.logger.Warn("duplicate payment request replayed", "idempotency_key", input.IdempotencyKey, "payment_id", stored.ID)
		return stored, true, nil
	}

	charge, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		AmountCents: input.AmountCents,
		Currency:    currency,
		Description: input.Description,
	})
	if err != nil {
		s.releaseReservation(input.IdempotencyKey)
		return Receipt{}, false, err
	}

	now := time.Now().UTC()
	p := Payment{
		ID:             uuid.NewString(),
		UserID:         input.RequesterID,
		AccountID:      input.AccountID,
		ChargeID:       charge.ID,
		AmountCents:    input.AmountCents,
		Currency:       currency,
		Status:         statusFromCharge(charge.Status),
		Method:         input.Method,
		Description:    input.Description,
		IdempotencyKey: input.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Status == StatusCompleted {
		p.CompletedAt = &now
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.releaseReservation(input.IdempotencyKey)
		return Receipt{}, false, err
	}

	receipt = toReceipt(p)
	payload, err := json.Marshal(receipt)
	if err != nil {
		s.logger.Error("encode receipt for idempotency store", "payment_id", p.ID, "error", err)
	} else if err := s.guard.SaveResult(ctx, input.IdempotencyKey, p.ID, payload); err != nil {
		// The payment row's unique key still protects against double-create.
		s.logger.Error("save idempotency record", "payment_id", p.ID, "error", err)
	}

	go s.publish(p)

	s.logger.Info("payment created", "payment_id", p.ID, "charge_id", p.ChargeID, "amount_cents", p.AmountCents)
	return receipt, false, nil
}

// Confirm drives the remote charge to a terminal status and records it.
func (s *Service) Confirm(ctx context.Context, paymentID, requesterID string) (Receipt, error) {
	p, err := s.getOwned(ctx, paymentID, requesterID)
	if err != nil {
		return Receipt{}, err
	}

	charge, err := s.gateway.ConfirmCharge(ctx, p.ChargeID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return Receipt{}, err
		}
		p.Status = StatusFailed
		p.FailureReason = err.Error()
		p.UpdatedAt = time.Now().UTC()
		if saveErr := s.repo.Update(ctx, p); saveErr != nil {
			s.logger.Error("record failed confirmation", "payment_id", p.ID, "error", saveErr)
		}
		return Receipt{}, err
	}

	now := time.Now().UTC()
	p.Status = statusFromCharge(charge.Status)
	p.FailureReason = charge.FailureReason
	p.UpdatedAt = now
	if p.Status == StatusCompleted {
		p.CompletedAt = &now
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return Receipt{}, err
	}

	if p.Status == StatusCompleted {
		go s.publish(p)
	}
	return toReceipt(p), nil
}

// Get returns one owned payment.
func (s *Service) Get(ctx context.Context, paymentID, requesterID string) (Receipt, error) {
	p, err := s.getOwned(ctx, paymentID, requesterID)
	if err != nil {
		return Receipt{}, err
	}
	return toReceipt(p), nil
}

// List returns the requester's payments, newest first. A non-positive size
// returns everything.
func (s *Service) List(ctx context.Context, requesterID string, page, size int) ([]Receipt, error) {
	offset := 0
	if size > 0 {
		offset = page * size
		if offset < 0 {
			// Overflowed or negative page request: no such page.
			return []Receipt{}, nil
		}
	}
	payments, err := s.repo.ListByUser(ctx, requesterID, size, offset)
	if err != nil {
		return nil, err
	}
	receipts := make([]Receipt, 0, len(payments))
	for _, p := range payments {
		receipts = append(receipts, toReceipt(p))
	}
	return receipts, nil
}

func (s *Service) getOwned(ctx context.Context, paymentID, requesterID string) (Payment, error) {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != requesterID {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (s *Service) releaseReservation(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.guard.Release(ctx, key); err != nil {
		s.logger.Warn("release idempotency reservation", "idempotency_key", key, "error", err)
	}
}

func (s *Service) publish(p Payment) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.TopicPayments, p.ID, toReceipt(p)); err != nil {
		s.logger.Warn("payment event publish failed", "payment_id", p.ID, "error", err)
	}
}

func statusFromCharge(chargeStatus string) string {
	switch chargeStatus {
	case gateway.StatusSucceeded:
		return StatusCompleted
	case gateway.StatusProcessing:
		return StatusProcessing
	case gateway.StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

func toReceipt(p Payment) Receipt {
	return Receipt{
		ID:            p.ID,
		UserID:        p.UserID,
		AccountID:     p.AccountID,
		ChargeID:      p.ChargeID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Status:        p.Status,
		Method:        p.Method,
		Description:   p.Description,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
	}
}
