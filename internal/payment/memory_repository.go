package payment

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory payment store for development mode and
// tests. The by-key index mirrors the unique constraint on idempotency keys.
type MemoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Payment
	byKey   map[string]string
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		storage: make(map[string]Payment),
		byKey:   make(map[string]string),
	}
}

// Create inserts a payment, rejecting duplicate idempotency keys.
func (r *MemoryRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.IdempotencyKey != "" {
		if _, exists := r.byKey[p.IdempotencyKey]; exists {
			return ErrDuplicateKey
		}
		r.byKey[p.IdempotencyKey] = p.ID
	}
	r.storage[p.ID] = p
	return nil
}

// Get fetches a payment by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// Update rewrites a stored payment.
func (r *MemoryRepository) Update(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[p.ID]; !ok {
		return ErrNotFound
	}
	r.storage[p.ID] = p
	return nil
}

// ListByUser returns the user's payments, newest first.
func (r *MemoryRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]Payment, error) {
	r.mu.RLock()
	payments := make([]Payment, 0)
	for _, p := range r.storage {
		if p.UserID == userID {
			payments = append(payments, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].CreatedAt.After(payments[j].CreatedAt)
		}
		return payments[i].ID > payments[j].ID
	})

	if limit <= 0 {
		return payments, nil
	}
	if offset < 0 || offset >= len(payments) {
		return []Payment{}, nil
	}
	end := offset + limit
	if end > len(payments) {
		end = len(payments)
	}
	return payments[offset:end], nil
}
