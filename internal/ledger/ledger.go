package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound occurs when a referenced account does not exist in the ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInactiveAccount indicates a balance mutation was attempted on a suspended
	// or closed account.
	ErrInactiveAccount = errors.New("account is not active")

	// ErrLockTimeout indicates an account lock could not be acquired within the
	// configured wait. Callers may retry.
	ErrLockTimeout = errors.New("account lock wait timed out")

	// ErrTransferFailed reports a mid-commit storage failure. Both legs are recorded
	// as failed and no balance delta is retained.
	ErrTransferFailed = errors.New("transfer failed")
)

// Account status values as stored alongside balances. The ledger refuses to
// mutate the balance of any account that is not active.
const (
	AccountActive    = "active"
	AccountSuspended = "suspended"
	AccountClosed    = "closed"
)

// Entry types. TypeTransfer is the legacy undifferentiated form kept for
// historical rows; it is reclassified relative to the viewing account at read
// time and never written by new code.
const (
	TypeTransferOut = "transfer_out"
	TypeTransferIn  = "transfer_in"
	TypeDeposit     = "deposit"
	TypeWithdrawal  = "withdrawal"
	TypePayment     = "payment"
	TypeTransfer    = "transfer"
)

// Entry statuses. Pending rows transition to exactly one terminal status, and
// the two legs sharing a ReferenceID always reach the same one.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Directions annotate an entry with the viewing account's perspective.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// AccountState is the slice of account data the ledger owns: the balance it
// exclusively mutates and the status guarding that mutation.
type AccountState struct {
	ID           string
	BalanceCents int64
	Status       string
	Currency     string
}

// AccountStore gives the in-memory ledger access to account state. StoreStates
// applies every given state or none of them, and is only ever called while the
// ledger holds the accounts' locks.
type AccountStore interface {
	LoadState(ctx context.Context, id string) (AccountState, error)
	StoreStates(ctx context.Context, states ...AccountState) error
}

// Entry is one leg of a value movement. The two legs of a transfer share a
// ReferenceID and carry equal amount and currency.
type Entry struct {
	ID            string
	FromAccountID string
	ToAccountID   string
	AmountCents   int64
	Currency      string
	Type          string
	Status        string
	Description   string
	Reference     string
	ReferenceID   string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// EntryView decorates an entry with the viewing account's perspective.
type EntryView struct {
	Entry
	Direction   string
	DisplayType string
}

// EntryPair holds the two legs of a committed transfer.
type EntryPair struct {
	Out Entry
	In  Entry
}

// TransferPlan carries everything the ledger needs to commit a transfer. The
// coordinator builds references and descriptions; the ledger assigns ids and
// timestamps.
type TransferPlan struct {
	FromAccountID  string
	ToAccountID    string
	AmountCents    int64
	Currency       string
	ReferenceID    string
	OutReference   string
	InReference    string
	OutDescription string
	InDescription  string
}

// Page bounds a listing. A non-positive Size returns the full result set.
type Page struct {
	Number int
	Size   int
}

// Ledger is the contract implemented by ledger backends. ExecuteTransfer
// commits both balance deltas and both leg status transitions as one atomic
// unit: a partial application is never observable.
type Ledger interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	ExecuteTransfer(ctx context.Context, plan TransferPlan) (EntryPair, error)
	EntriesForAccount(ctx context.Context, accountID string, page Page) ([]EntryView, error)
}

// perspective computes direction and display type of an entry as seen from
// accountID, reclassifying the legacy undifferentiated transfer type.
func perspective(e Entry, accountID string) (direction, displayType string) {
	switch e.Type {
	case TypeTransfer:
		if e.FromAccountID == accountID {
			return DirectionOut, TypeTransferOut
		}
		return DirectionIn, TypeTransferIn
	case TypeTransferOut, TypeWithdrawal, TypePayment:
		return DirectionOut, e.Type
	case TypeTransferIn, TypeDeposit:
		return DirectionIn, e.Type
	default:
		if e.FromAccountID == accountID {
			return DirectionOut, e.Type
		}
		return DirectionIn, e.Type
	}
}

// entryConcerns reports whether the entry belongs to accountID's statement.
// For paired transfers each account sees only its own leg; legacy rows are
// visible from both sides.
func entryConcerns(e Entry, accountID string) bool {
	switch e.Type {
	case TypeTransferOut, TypeWithdrawal, TypePayment:
		return e.FromAccountID == accountID
	case TypeTransferIn, TypeDeposit:
		return e.ToAccountID == accountID
	default:
		return e.FromAccountID == accountID || e.ToAccountID == accountID
	}
}
