package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearledger/clearledger/internal/ledger"
)

// MemoryRepository is an in-memory account store used in development mode and
// tests. It doubles as the ledger's AccountStore so balance state has a single
// source of truth.
type MemoryRepository struct {
	mu       sync.RWMutex
	storage  map[string]Account
	byNumber map[string]string
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		storage:  make(map[string]Account),
		byNumber: make(map[string]string),
	}
}

// Create inserts an account, rejecting duplicate numbers.
func (r *MemoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byNumber[acct.Number]; exists {
		return ErrNumberTaken
	}
	r.storage[acct.ID] = acct
	r.byNumber[acct.Number] = acct.ID
	return nil
}

// Get fetches an account by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.storage[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// GetByNumber fetches an account by its number.
func (r *MemoryRepository) GetByNumber(_ context.Context, number string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[number]
	if !ok {
		return Account{}, ErrNotFound
	}
	return r.storage[id], nil
}

// ListByOwner returns the owner's accounts, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accounts := make([]Account, 0)
	for _, acct := range r.storage {
		if acct.OwnerID == ownerID {
			accounts = append(accounts, acct)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
		}
		return accounts[i].ID > accounts[j].ID
	})
	return accounts, nil
}

// UpdateStatus writes a new account status.
func (r *MemoryRepository) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	acct.Status = status
	acct.UpdatedAt = time.Now().UTC()
	r.storage[id] = acct
	return nil
}

// LoadState exposes balance state to the ledger.
func (r *MemoryRepository) LoadState(_ context.Context, id string) (ledger.AccountState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.storage[id]
	if !ok {
		return ledger.AccountState{}, ledger.ErrAccountNotFound
	}
	return ledger.AccountState{
		ID:           acct.ID,
		BalanceCents: acct.BalanceCents,
		Status:       acct.Status,
		Currency:     acct.Currency,
	}, nil
}

// StoreStates writes balances mutated by the ledger, all or none. Only called
// while the ledger holds the accounts' locks.
func (r *MemoryRepository) StoreStates(_ context.Context, states ...ledger.AccountState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range states {
		if _, ok := r.storage[st.ID]; !ok {
			return ledger.ErrAccountNotFound
		}
	}
	now := time.Now().UTC()
	for _, st := range states {
		acct := r.storage[st.ID]
		acct.BalanceCents = st.BalanceCents
		acct.UpdatedAt = now
		r.storage[st.ID] = acct
	}
	return nil
}
