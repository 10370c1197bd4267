/**
 * @description
 * In-memory implementation of the `Repository` interface. It backs the test
 * suite and lets the service boot in a degraded mode when no DATABASE_URL is
 * configured. A single mutex guards the id counters, the maps, and the
 * idempotency key set, so identifier assignment and key reservation are
 * atomic under concurrent callers.
 */

package store

import (
	"context"
	"sync"

	"github.com/jawnt/banking-service/internal/domain"
)

// MemoryRepository is a mutex-guarded, insertion-ordered in-memory store.
type MemoryRepository struct {
	mu sync.Mutex

	internalAccounts  map[int64]domain.InternalAccount
	internalOrder     []int64
	nextInternalID    int64
	externalAccounts  map[int64]domain.ExternalAccount
	externalOrder     []int64
	nextExternalID    int64
	payments          map[int64]domain.Payment
	paymentOrder      []int64
	nextPaymentID     int64
	paymentsByIdemKey map[string]int64
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		internalAccounts:  make(map[int64]domain.InternalAccount),
		nextInternalID:    1,
		externalAccounts:  make(map[int64]domain.ExternalAccount),
		nextExternalID:    1,
		payments:          make(map[int64]domain.Payment),
		nextPaymentID:     1,
		paymentsByIdemKey: make(map[string]int64),
	}
}

func (r *MemoryRepository) CreateInternalAccount(ctx context.Context, account *domain.InternalAccount) (*domain.InternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.ID = r.nextInternalID
	r.nextInternalID++
	r.internalAccounts[account.ID] = *account
	r.internalOrder = append(r.internalOrder, account.ID)

	created := *account
	return &created, nil
}

func (r *MemoryRepository) GetInternalAccount(ctx context.Context, id int64) (*domain.InternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.internalAccounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (r *MemoryRepository) ListInternalAccounts(ctx context.Context) ([]domain.InternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]domain.InternalAccount, 0, len(r.internalOrder))
	for _, id := range r.internalOrder {
		if account, ok := r.internalAccounts[id]; ok {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (r *MemoryRepository) UpdateInternalAccount(ctx context.Context, id int64, account *domain.InternalAccount) (*domain.InternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.internalAccounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}

	// Identity fields are immutable once assigned.
	updated := *account
	updated.ID = existing.ID
	updated.UUID = existing.UUID
	r.internalAccounts[id] = updated

	result := updated
	return &result, nil
}

func (r *MemoryRepository) DeleteInternalAccount(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.internalAccounts[id]; !ok {
		return false, nil
	}
	delete(r.internalAccounts, id)
	for i, orderedID := range r.internalOrder {
		if orderedID == id {
			r.internalOrder = append(r.internalOrder[:i], r.internalOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *MemoryRepository) CreateExternalAccount(ctx context.Context, account *domain.ExternalAccount) (*domain.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.ID = r.nextExternalID
	r.nextExternalID++
	r.externalAccounts[account.ID] = *account
	r.externalOrder = append(r.externalOrder, account.ID)

	created := *account
	return &created, nil
}

func (r *MemoryRepository) ListExternalAccounts(ctx context.Context) ([]domain.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]domain.ExternalAccount, 0, len(r.externalOrder))
	for _, id := range r.externalOrder {
		if account, ok := r.externalAccounts[id]; ok {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (r *MemoryRepository) FindExternalAccountByPlaidID(ctx context.Context, plaidAccountID string) (*domain.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.externalOrder {
		account, ok := r.externalAccounts[id]
		if ok && account.PlaidAccountID == plaidAccountID {
			return &account, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryRepository) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The key reservation and the insert happen under one lock so a racing
	// duplicate can never slip through between check and create.
	if _, exists := r.paymentsByIdemKey[payment.IdempotencyKey]; exists {
		return nil, ErrDuplicateIdempotencyKey
	}

	payment.ID = r.nextPaymentID
	r.nextPaymentID++
	r.payments[payment.ID] = *payment
	r.paymentOrder = append(r.paymentOrder, payment.ID)
	r.paymentsByIdemKey[payment.IdempotencyKey] = payment.ID

	created := *payment
	return &created, nil
}

func (r *MemoryRepository) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &payment, nil
}

func (r *MemoryRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payments := make([]domain.Payment, 0, len(r.paymentOrder))
	for _, id := range r.paymentOrder {
		if payment, ok := r.payments[id]; ok {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

func (r *MemoryRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	// Terminal statuses are immutable; the update degrades to a no-op.
	if !payment.Status.Terminal() && payment.Status != status {
		payment.Status = status
		r.payments[id] = payment
	}
	return &payment, nil
}

func (r *MemoryRepository) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.paymentsByIdemKey[key]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	payment, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &payment, nil
}
