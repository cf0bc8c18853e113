package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a concurrency-safe in-memory ledger used in development mode and
// unit tests. Exclusive access to account balances goes through the Locker;
// the entry log is append-only behind its own mutex.
type Memory struct {
	store    AccountStore
	locks    *Locker
	lockWait time.Duration

	mu      sync.RWMutex
	entries []Entry
}

// NewMemory builds an in-memory ledger over the given account store.
func NewMemory(store AccountStore, lockWait time.Duration) *Memory {
	return &Memory{store: store, locks: NewLocker(), lockWait: lockWait}
}

// Balance returns the current balance for the account.
func (l *Memory) Balance(ctx context.Context, accountID string) (int64, error) {
	st, err := l.store.LoadState(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return st.BalanceCents, nil
}

// ExecuteTransfer moves funds between two accounts under both account locks,
// writing the paired out/in legs. The balance deltas and the completed status
// commit together; a storage failure leaves balances untouched and records
// both legs as failed.
func (l *Memory) ExecuteTransfer(ctx context.Context, plan TransferPlan) (EntryPair, error) {
	if plan.AmountCents <= 0 {
		return EntryPair{}, fmt.Errorf("amount must be positive")
	}

	var pair EntryPair
	err := l.locks.WithAccountPair(ctx, plan.FromAccountID, plan.ToAccountID, l.lockWait, func() error {
		from, err := l.store.LoadState(ctx, plan.FromAccountID)
		if err != nil {
			return err
		}
		to, err := l.store.LoadState(ctx, plan.ToAccountID)
		if err != nil {
			return err
		}

		if from.Status != AccountActive || to.Status != AccountActive {
			return ErrInactiveAccount
		}
		if from.BalanceCents < plan.AmountCents {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		out := newEntry(plan, TypeTransferOut, plan.OutReference, plan.OutDescription, now)
		in := newEntry(plan, TypeTransferIn, plan.InReference, plan.InDescription, now)

		from.BalanceCents -= plan.AmountCents
		to.BalanceCents += plan.AmountCents

		// Both deltas land in one store call, so a failure leaves no partial state.
		if err := l.store.StoreStates(ctx, from, to); err != nil {
			l.appendFailed(out, in)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		completedAt := time.Now().UTC()
		out.Status = StatusCompleted
		out.CompletedAt = &completedAt
		in.Status = StatusCompleted
		in.CompletedAt = &completedAt

		l.mu.Lock()
		l.entries = append(l.entries, out, in)
		l.mu.Unlock()

		pair = EntryPair{Out: out, In: in}
		return nil
	})
	return pair, err
}

// EntriesForAccount lists the account's legs newest first, ties broken by id,
// each annotated with the account's perspective.
func (l *Memory) EntriesForAccount(ctx context.Context, accountID string, page Page) ([]EntryView, error) {
	if _, err := l.store.LoadState(ctx, accountID); err != nil {
		return nil, err
	}

	l.mu.RLock()
	views := make([]EntryView, 0)
	for _, e := range l.entries {
		if !entryConcerns(e, accountID) {
			continue
		}
		direction, displayType := perspective(e, accountID)
		views = append(views, EntryView{Entry: e, Direction: direction, DisplayType: displayType})
	}
	l.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})

	return paginate(views, page), nil
}

func (l *Memory) appendFailed(out, in Entry) {
	out.Status = StatusFailed
	in.Status = StatusFailed
	l.mu.Lock()
	l.entries = append(l.entries, out, in)
	l.mu.Unlock()
}

func newEntry(plan TransferPlan, entryType, reference, description string, createdAt time.Time) Entry {
	return Entry{
		ID:            uuid.NewString(),
		FromAccountID: plan.FromAccountID,
		ToAccountID:   plan.ToAccountID,
		AmountCents:   plan.AmountCents,
		Currency:      plan.Currency,
		Type:          entryType,
		Status:        StatusPending,
		Description:   description,
		Reference:     reference,
		ReferenceID:   plan.ReferenceID,
		CreatedAt:     createdAt,
	}
}

func paginate(views []EntryView, page Page) []EntryView {
	if page.Size <= 0 {
		return views
	}
	// A negative product means the requested offset overflowed; no such page.
	start := page.Number * page.Size
	if start < 0 || start >= len(views) {
		return []EntryView{}
	}
	end := start + page.Size
	if end > len(views) {
		end = len(views)
	}
	return views[start:end]
}
