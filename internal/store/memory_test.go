package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/jawnt/banking-service/internal/domain"
)

func newInternalAccount(accountType domain.InternalAccountType) *domain.InternalAccount {
	return &domain.InternalAccount{
		UUID:           uuid.New(),
		Type:           accountType,
		AccountNumber:  123456789,
		RoutingNumber:  987654321,
		OrganizationID: 1,
	}
}

func newPayment(key string) *domain.Payment {
	return &domain.Payment{
		UUID:                     uuid.New(),
		SourceRoutingNumber:      123456789,
		DestinationRoutingNumber: 987654321,
		Amount:                   50000,
		Status:                   domain.PaymentStatusPending,
		PaymentType:              domain.PaymentTypeACHDebit,
		SourceAccountID:          domain.ExternalRef("plaid-acc-1"),
		DestinationAccountID:     domain.InternalRef(1),
		IdempotencyKey:           key,
	}
}

func TestInternalAccountLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.CreateInternalAccount(ctx, newInternalAccount(domain.InternalAccountTypeFunding))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected first id 1, got %d", first.ID)
	}

	second, err := repo.CreateInternalAccount(ctx, newInternalAccount(domain.InternalAccountTypeClaims))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("expected monotonic id 2, got %d", second.ID)
	}

	accounts, err := repo.ListInternalAccounts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ID != 1 || accounts[1].ID != 2 {
		t.Fatalf("expected insertion order [1 2], got [%d %d]", accounts[0].ID, accounts[1].ID)
	}

	retyped := *second
	retyped.Type = domain.InternalAccountTypeFunding
	updated, err := repo.UpdateInternalAccount(ctx, second.ID, &retyped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Type != domain.InternalAccountTypeFunding {
		t.Fatalf("expected updated type funding, got %s", updated.Type)
	}
	if updated.UUID != second.UUID {
		t.Fatalf("expected uuid to be immutable across updates")
	}

	deleted, err := repo.DeleteInternalAccount(ctx, first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete to report success")
	}
	if deleted, _ := repo.DeleteInternalAccount(ctx, first.ID); deleted {
		t.Fatalf("expected second delete to report failure")
	}
	if _, err := repo.GetInternalAccount(ctx, first.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUpdateInternalAccountNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.UpdateInternalAccount(context.Background(), 999, newInternalAccount(domain.InternalAccountTypeClaims))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestConcurrentCreatesAssignUniqueIDs(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	const workers = 32
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := repo.CreateInternalAccount(ctx, newInternalAccount(domain.InternalAccountTypeFunding))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids <- account.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id assigned: %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d unique ids, got %d", workers, len(seen))
	}
}

func TestCreatePaymentRejectsDuplicateIdempotencyKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.CreatePayment(ctx, newPayment("key-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.CreatePayment(ctx, newPayment("key-1")); !errors.Is(err, ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	existing, err := repo.FindPaymentByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existing.ID != first.ID {
		t.Fatalf("expected key lookup to return payment %d, got %d", first.ID, existing.ID)
	}

	payments, err := repo.ListPayments(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(payments))
	}
}

func TestUpdatePaymentStatusIsMonotonic(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.CreatePayment(ctx, newPayment("key-status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, err := repo.UpdatePaymentStatus(ctx, created.ID, domain.PaymentStatusSuccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", settled.Status)
	}

	// A settled payment never transitions again.
	after, err := repo.UpdatePaymentStatus(ctx, created.ID, domain.PaymentStatusFailure)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected terminal status to stick, got %s", after.Status)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	if _, err := repo.GetPayment(context.Background(), 999); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if _, err := repo.UpdatePaymentStatus(context.Background(), 999, domain.PaymentStatusSuccess); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
