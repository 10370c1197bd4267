/**
 * @description
 * This file defines the `Repository` interface, the contract for all durable
 * storage the banking-service needs. The payment lifecycle engine depends
 * only on this interface, never on a concrete store, so the in-memory
 * implementation can back tests (and degraded mode) while PostgreSQL backs
 * production.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/jawnt/banking-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateIdempotencyKey is returned by CreatePayment when a payment
	// with the same idempotency key already exists. The caller resolves the
	// prior record instead of creating a second one.
	ErrDuplicateIdempotencyKey = errors.New("payment with this idempotency key already exists")
)

// Repository defines the set of methods for interacting with durable storage.
// Every Create assigns a unique, strictly increasing identifier atomically,
// even under concurrent callers. List methods return insertion order.
type Repository interface {
	// Internal account methods
	CreateInternalAccount(ctx context.Context, account *domain.InternalAccount) (*domain.InternalAccount, error)
	GetInternalAccount(ctx context.Context, id int64) (*domain.InternalAccount, error)
	ListInternalAccounts(ctx context.Context) ([]domain.InternalAccount, error)
	UpdateInternalAccount(ctx context.Context, id int64, account *domain.InternalAccount) (*domain.InternalAccount, error)
	DeleteInternalAccount(ctx context.Context, id int64) (bool, error)

	// External account methods
	CreateExternalAccount(ctx context.Context, account *domain.ExternalAccount) (*domain.ExternalAccount, error)
	ListExternalAccounts(ctx context.Context) ([]domain.ExternalAccount, error)
	FindExternalAccountByPlaidID(ctx context.Context, plaidAccountID string) (*domain.ExternalAccount, error)

	// Payment methods. Payments are append-only: there is no delete, and
	// UpdatePaymentStatus is a no-op once the payment is in a terminal state.
	CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Payment, error)
	FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
}
