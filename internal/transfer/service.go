package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/clearledger/internal/account"
	"github.com/clearledger/clearledger/internal/events"
	"github.com/clearledger/clearledger/internal/ledger"
)

var (
	// ErrUnauthorized indicates the source account is not owned by the requester.
	ErrUnauthorized = errors.New("source account does not belong to requester")

	// ErrSameAccount indicates source and destination are the same account.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInvalidAmount indicates a non-positive transfer amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAmountOverCeiling indicates the amount exceeds the per-transfer limit.
	ErrAmountOverCeiling = errors.New("amount exceeds per-transfer ceiling")
)

const publishTimeout = 5 * time.Second

// Service coordinates transfers: fail-fast validation without locks, an atomic
// ledger commit, then best-effort event publication.
type Service struct {
	accounts  account.Repository
	ledger    ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
	ceiling   int64
}

// NewService constructs a transfer coordinator.
func NewService(accounts account.Repository, led ledger.Ledger, publisher events.Publisher, logger *slog.Logger, ceilingCents int64) *Service {
	return &Service{accounts: accounts, ledger: led, publisher: publisher, logger: logger, ceiling: ceilingCents}
}

// Input captures a transfer request. The destination is addressed by account
// number, as printed on statements.
type Input struct {
	RequesterID     string
	FromAccountID   string
	ToAccountNumber string
	AmountCents     int64
	Description     string
}

// Result is the requester-side leg of a committed transfer plus the source
// account's balance after commit.
type Result struct {
	Entry            ledger.Entry
	FromBalanceCents int64
}

// Event is the payload published for each affected account owner after a
// transfer commits. Downstream consumers deduplicate.
type Event struct {
	TransactionID string    `json:"transaction_id"`
	ReferenceID   string    `json:"reference_id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	OwnerID       string    `json:"owner_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// Transfer validates the request, commits the paired legs and balance deltas
// through the ledger, then notifies the bus asynchronously. All validation
// failures surface before any lock is taken or row persisted.
func (s *Service) Transfer(ctx context.Context, input Input) (Result, error) {
	if input.AmountCents <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if input.AmountCents > s.ceiling {
		return Result{}, ErrAmountOverCeiling
	}

	from, err := s.accounts.Get(ctx, input.FromAccountID)
	if err != nil {
		return Result{}, err
	}
	if from.OwnerID != input.RequesterID {
		return Result{}, ErrUnauthorized
	}

	to, err := s.accounts.GetByNumber(ctx, input.ToAccountNumber)
	if err != nil {
		return Result{}, err
	}
	if from.ID == to.ID {
		return Result{}, ErrSameAccount
	}
	if from.Status != account.StatusActive || to.Status != account.StatusActive {
		return Result{}, ledger.ErrInactiveAccount
	}

	reference := newReference()
	plan := ledger.TransferPlan{
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		AmountCents:    input.AmountCents,
		Currency:       from.Currency,
		ReferenceID:    newReferenceID(),
		OutReference:   reference + "-OUT",
		InReference:    reference + "-IN",
		OutDescription: legDescription("Transfer to", to.Number, input.Description),
		InDescription:  legDescription("Transfer from", from.Number, input.Description),
	}

	pair, err := s.ledger.ExecuteTransfer(ctx, plan)
	observeOutcome(err)
	if err != nil {
		if errors.Is(err, ledger.ErrTransferFailed) {
			s.logger.Error("transfer commit failed", "reference_id", plan.ReferenceID, "error", err)
		}
		return Result{}, err
	}

	s.logger.Info("transfer completed",
		"reference_id", plan.ReferenceID, "from", from.ID, "to", to.ID, "amount_cents", input.AmountCents)

	// Notification is decoupled from financial correctness: run detached from
	// the request context, swallow failures.
	go s.publishPair(pair, from.OwnerID, to.OwnerID)

	balance, err := s.ledger.Balance(ctx, from.ID)
	if err != nil {
		// The transfer is committed; a balance read failure must not fail it.
		s.logger.Warn("post-transfer balance read failed", "account_id", from.ID, "error", err)
	}
	return Result{Entry: pair.Out, FromBalanceCents: balance}, nil
}

func (s *Service) publishPair(pair ledger.EntryPair, fromOwnerID, toOwnerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	for _, leg := range []struct {
		entry   ledger.Entry
		ownerID string
	}{
		{pair.Out, fromOwnerID},
		{pair.In, toOwnerID},
	} {
		event := Event{
			TransactionID: leg.entry.ID,
			ReferenceID:   leg.entry.ReferenceID,
			FromAccountID: leg.entry.FromAccountID,
			ToAccountID:   leg.entry.ToAccountID,
			OwnerID:       leg.ownerID,
			AmountCents:   leg.entry.AmountCents,
			Currency:      leg.entry.Currency,
			Type:          leg.entry.Type,
			Status:        leg.entry.Status,
			Description:   leg.entry.Description,
			Timestamp:     time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, events.TopicTransactions, leg.ownerID, event); err != nil {
			s.logger.Warn("transaction event publish failed", "transaction_id", leg.entry.ID, "error", err)
		}
	}
}

// ListForAccount returns the requester's view of an owned account's ledger
// legs, newest first.
func (s *Service) ListForAccount(ctx context.Context, accountID, requesterID string, page ledger.Page) ([]ledger.EntryView, error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.OwnerID != requesterID {
		return nil, ErrUnauthorized
	}
	return s.ledger.EntriesForAccount(ctx, accountID, page)
}

// ListForOwner merges the legs of all the requester's accounts, newest first.
func (s *Service) ListForOwner(ctx context.Context, requesterID string, page ledger.Page) ([]ledger.EntryView, error) {
	accounts, err := s.accounts.ListByOwner(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	merged := make([]ledger.EntryView, 0)
	for _, acct := range accounts {
		views, err := s.ledger.EntriesForAccount(ctx, acct.ID, ledger.Page{})
		if err != nil {
			return nil, err
		}
		merged = append(merged, views...)
	}
	sortViews(merged)
	return pageViews(merged, page), nil
}

func legDescription(prefix, number, description string) string {
	masked := account.MaskNumber(number)
	if strings.TrimSpace(description) == "" {
		return fmt.Sprintf("%s %s", prefix, masked)
	}
	return fmt.Sprintf("%s %s - %s", prefix, masked, description)
}

func newReference() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}

func newReferenceID() string {
	return "TRF-" + uuid.NewString()[:13]
}

func sortViews(views []ledger.EntryView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
}

func pageViews(views []ledger.EntryView, page ledger.Page) []ledger.EntryView {
	if page.Size <= 0 {
		return views
	}
	start := page.Number * page.Size
	if start < 0 || start >= len(views) {
		return []ledger.EntryView{}
	}
	end := start + page.Size
	if end > len(views) {
		end = len(views)
	}
	return views[start:end]
}
