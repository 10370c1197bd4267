/**
 * @description
 * This file contains the core business logic for the banking-service. The
 * Service struct orchestrates account management, the payment lifecycle
 * (dispatch to the rail, durable recording, status reconciliation), the
 * Plaid account-linking flow, and lifecycle event publishing.
 *
 * Payment creation is idempotent: a per-key lock serializes concurrent
 * requests carrying the same idempotency key, so exactly one rail dispatch
 * and one ledger record result no matter how many times a client retries.
 * A failed rail dispatch leaves no record behind, which keeps the key usable
 * for the retry.
 *
 * @dependencies
 * - internal/store: For data persistence.
 * - internal/domain: For the service's domain models.
 * - pkg/railclient: For dispatching payment instructions to the rail.
 * - pkg/plaidclient: For the Plaid account-linking flow.
 * - pkg/rabbitmq: For publishing lifecycle events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jawnt/banking-service/internal/domain"
	"github.com/jawnt/banking-service/internal/store"
	"github.com/jawnt/banking-service/pkg/plaidclient"
	"github.com/jawnt/banking-service/pkg/railclient"
)

// DefaultEventsExchange is the topic exchange lifecycle events go to when no
// exchange is configured. The audit consumer must bind the same name the
// producer publishes to, so both sides take it from configuration.
const DefaultEventsExchange = "banking.events"

var (
	// ErrInvalidAmount is returned when a payment amount is not a positive
	// number of cents.
	ErrInvalidAmount = errors.New("payment amount must be a positive number of cents")

	// ErrMissingIdempotencyKey is returned when a payment request carries no
	// idempotency key.
	ErrMissingIdempotencyKey = errors.New("idempotency_key is required")

	// ErrInvalidRoute is returned when a payment's endpoints are not valid
	// for its type, e.g. a book transfer referencing an external account.
	ErrInvalidRoute = errors.New("invalid account route for payment type")

	// ErrRailDispatch is returned when the payment rail rejects or fails a
	// submission. The payment was not recorded and the key may be retried.
	ErrRailDispatch = errors.New("payment rail dispatch failed")

	// ErrRailStatus is returned when the rail's status endpoint fails or
	// reports an unknown settlement state.
	ErrRailStatus = errors.New("payment rail status check failed")

	// ErrAggregator is returned when a Plaid API call fails.
	ErrAggregator = errors.New("account aggregator request failed")

	// ErrNoEligibleAccounts is returned when a public-token exchange yields
	// no checking or savings accounts to link.
	ErrNoEligibleAccounts = errors.New("no eligible checking or savings accounts to link")
)

// Rail abstracts the payment rail adapter so the engine can be tested
// against a fake.
type Rail interface {
	SubmitDebit(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*railclient.SubmissionAck, error)
	SubmitCredit(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*railclient.SubmissionAck, error)
	SubmitBook(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*railclient.SubmissionAck, error)
	GetPaymentStatus(ctx context.Context, paymentUUID string) (railclient.Status, error)
}

// Aggregator abstracts the Plaid client for the account-linking flow.
type Aggregator interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaidclient.ExchangeResult, error)
}

// Publisher abstracts the event producer so the engine never depends on a
// live broker connection.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// keyedMutex hands out one mutex per idempotency key so that concurrent
// requests with the same key serialize while unrelated keys proceed freely.
// Entries are reference counted and dropped once the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Service provides the business logic for the banking-service.
type Service struct {
	repo           store.Repository
	rail           Rail
	aggregator     Aggregator
	eventProducer  Publisher
	eventsExchange string
	paymentKeys    keyedMutex
}

// NewService creates a new application service. eventsExchange is the topic
// exchange lifecycle events are published to; an empty value falls back to
// DefaultEventsExchange.
func NewService(repo store.Repository, rail Rail, aggregator Aggregator, eventProducer Publisher, eventsExchange string) *Service {
	if strings.TrimSpace(eventsExchange) == "" {
		eventsExchange = DefaultEventsExchange
	}
	return &Service{
		repo:           repo,
		rail:           rail,
		aggregator:     aggregator,
		eventProducer:  eventProducer,
		eventsExchange: eventsExchange,
	}
}

// --- Internal accounts ---

// CreateInternalAccount opens a new ledger account for an organization.
func (s *Service) CreateInternalAccount(ctx context.Context, req *domain.InternalAccountCreateRequest) (*domain.InternalAccount, error) {
	account := &domain.InternalAccount{
		UUID:           uuid.New(),
		Type:           req.Type,
		AccountNumber:  req.AccountNumber,
		RoutingNumber:  req.RoutingNumber,
		OrganizationID: req.OrganizationID,
	}

	created, err := s.repo.CreateInternalAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create internal account: %w", err)
	}

	s.publishAccountEvent(ctx, domain.EventAccountCreated, created.ID, created.UUID, "internal")
	return created, nil
}

// GetInternalAccount retrieves one internal account by id.
func (s *Service) GetInternalAccount(ctx context.Context, id int64) (*domain.InternalAccount, error) {
	return s.repo.GetInternalAccount(ctx, id)
}

// ListInternalAccounts returns all internal accounts in creation order.
func (s *Service) ListInternalAccounts(ctx context.Context) ([]domain.InternalAccount, error) {
	return s.repo.ListInternalAccounts(ctx)
}

// UpdateInternalAccountType re-types an internal account between funding and
// claims. All other fields are immutable.
func (s *Service) UpdateInternalAccountType(ctx context.Context, id int64, newType domain.InternalAccountType) (*domain.InternalAccount, error) {
	account, err := s.repo.GetInternalAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	account.Type = newType
	updated, err := s.repo.UpdateInternalAccount(ctx, id, account)
	if err != nil {
		return nil, err
	}

	s.publishAccountEvent(ctx, domain.EventAccountUpdated, updated.ID, updated.UUID, "internal")
	return updated, nil
}

// DeleteInternalAccount removes an internal account. It reports whether an
// account with the given id existed.
func (s *Service) DeleteInternalAccount(ctx context.Context, id int64) (bool, error) {
	return s.repo.DeleteInternalAccount(ctx, id)
}

// --- External accounts ---

// CreateExternalAccount registers an external account whose details were
// obtained out of band.
func (s *Service) CreateExternalAccount(ctx context.Context, req *domain.ExternalAccountCreateRequest) (*domain.ExternalAccount, error) {
	account := &domain.ExternalAccount{
		UUID:           uuid.New(),
		PlaidAccountID: req.PlaidAccountID,
		AccountNumber:  req.AccountNumber,
		RoutingNumber:  req.RoutingNumber,
		OrganizationID: req.OrganizationID,
		BankName:       req.BankName,
		AccountType:    req.AccountType,
	}

	created, err := s.repo.CreateExternalAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create external account: %w", err)
	}

	s.publishAccountEvent(ctx, domain.EventAccountCreated, created.ID, created.UUID, "external")
	return created, nil
}

// ListExternalAccounts returns all linked external accounts in creation order.
func (s *Service) ListExternalAccounts(ctx context.Context) ([]domain.ExternalAccount, error) {
	return s.repo.ListExternalAccounts(ctx)
}

// --- Plaid account linking ---

// CreatePlaidLinkToken issues a Link token scoped to the given end user.
func (s *Service) CreatePlaidLinkToken(ctx context.Context, userID string) (string, error) {
	token, err := s.aggregator.CreateLinkToken(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAggregator, err)
	}
	return token, nil
}

// ExchangePlaidPublicToken trades a public token from Plaid Link for the
// linked accounts and registers every eligible checking or savings account
// as an external account for the organization.
func (s *Service) ExchangePlaidPublicToken(ctx context.Context, publicToken string, organizationID int64) ([]domain.ExternalAccount, error) {
	result, err := s.aggregator.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAggregator, err)
	}

	created := make([]domain.ExternalAccount, 0, len(result.Accounts))
	for _, linked := range result.Accounts {
		if linked.Subtype != "checking" && linked.Subtype != "savings" {
			continue
		}

		account := &domain.ExternalAccount{
			UUID:           uuid.New(),
			PlaidAccountID: linked.AccountID,
			AccountNumber:  linked.AccountNumber,
			RoutingNumber:  linked.RoutingNumber,
			OrganizationID: organizationID,
			BankName:       linked.Name,
			AccountType:    linked.Subtype,
		}

		stored, err := s.repo.CreateExternalAccount(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to store linked account %s: %w", linked.AccountID, err)
		}
		s.publishAccountEvent(ctx, domain.EventAccountCreated, stored.ID, stored.UUID, "external")
		created = append(created, *stored)
	}

	if len(created) == 0 {
		return nil, ErrNoEligibleAccounts
	}
	return created, nil
}

// --- Payments ---

// CreatePayment validates, dispatches, and records one payment instruction.
// The returned bool reports whether the call was an idempotent replay of an
// earlier submission, in which case the original record is returned and the
// rail is not contacted again.
func (s *Service) CreatePayment(ctx context.Context, paymentType domain.PaymentType, req *domain.PaymentCreateRequest) (*domain.Payment, bool, error) {
	if req.Amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, false, ErrMissingIdempotencyKey
	}
	if err := s.validateRoute(ctx, paymentType, req.SourceAccountID, req.DestinationAccountID); err != nil {
		return nil, false, err
	}

	// Serialize concurrent submissions of the same key so at most one rail
	// dispatch happens; the losers observe the winner's record below.
	unlock := s.paymentKeys.lock(key)
	defer unlock()

	existing, err := s.repo.FindPaymentByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	ack, err := s.dispatch(ctx, paymentType, req.SourceAccountID.String(), req.DestinationAccountID.String(), req.Amount, key)
	if err != nil {
		// No record is written on dispatch failure, so the key stays
		// available for a clean retry.
		return nil, false, fmt.Errorf("%w: %v", ErrRailDispatch, err)
	}

	payment := &domain.Payment{
		UUID:                     uuid.New(),
		SourceRoutingNumber:      req.SourceRoutingNumber,
		DestinationRoutingNumber: req.DestinationRoutingNumber,
		Amount:                   req.Amount,
		Status:                   domain.PaymentStatusPending,
		PaymentType:              paymentType,
		SourceAccountID:          req.SourceAccountID,
		DestinationAccountID:     req.DestinationAccountID,
		IdempotencyKey:           key,
	}
	if ack.PaymentID != "" {
		if railUUID, parseErr := uuid.Parse(ack.PaymentID); parseErr == nil {
			payment.UUID = railUUID
		}
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		// Another replica recorded the key between our check and our write.
		return s.replayExisting(ctx, key)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to record payment: %w", err)
	}

	s.publishPaymentEvent(ctx, domain.EventPaymentCreated, created)
	return created, false, nil
}

// GetPayment retrieves one payment by id without contacting the rail.
func (s *Service) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns all payments in creation order.
func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx)
}

// CheckPaymentStatus reconciles a payment's status with the rail and returns
// the up-to-date record. Payments already in a terminal state are returned
// as-is without a rail round trip, since terminal states never change.
func (s *Service) CheckPaymentStatus(ctx context.Context, id int64) (*domain.Payment, error) {
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.Terminal() {
		return payment, nil
	}

	railStatus, err := s.rail.GetPaymentStatus(ctx, payment.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailStatus, err)
	}

	newStatus, err := statusFromRail(railStatus)
	if err != nil {
		return nil, err
	}
	if newStatus == payment.Status {
		return payment, nil
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, newStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	s.publishPaymentEvent(ctx, domain.EventPaymentUpdated, updated)
	return updated, nil
}

// validateRoute checks that the payment's endpoints are valid for its type:
// book transfers move between two existing internal accounts, and ACH legs
// must resolve to a known internal or linked external account.
func (s *Service) validateRoute(ctx context.Context, paymentType domain.PaymentType, source, destination domain.AccountRef) error {
	if paymentType == domain.PaymentTypeBook && (!source.IsInternal() || !destination.IsInternal()) {
		return ErrInvalidRoute
	}

	for _, ref := range []domain.AccountRef{source, destination} {
		if ref.IsInternal() {
			if _, err := s.repo.GetInternalAccount(ctx, *ref.Internal); err != nil {
				return err
			}
			continue
		}
		if ref.External == "" {
			return domain.ErrInvalidAccountRef
		}
		if _, err := s.repo.FindExternalAccountByPlaidID(ctx, ref.External); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, paymentType domain.PaymentType, source, destination string, amount int64, idempotencyKey string) (*railclient.SubmissionAck, error) {
	switch paymentType {
	case domain.PaymentTypeACHDebit:
		return s.rail.SubmitDebit(ctx, source, destination, amount, idempotencyKey)
	case domain.PaymentTypeACHCredit:
		return s.rail.SubmitCredit(ctx, source, destination, amount, idempotencyKey)
	case domain.PaymentTypeBook:
		return s.rail.SubmitBook(ctx, source, destination, amount, idempotencyKey)
	default:
		return nil, fmt.Errorf("unknown payment type %q", paymentType)
	}
}

func (s *Service) replayExisting(ctx context.Context, key string) (*domain.Payment, bool, error) {
	existing, err := s.repo.FindPaymentByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve duplicate idempotency key: %w", err)
	}
	return existing, true, nil
}

func statusFromRail(railStatus railclient.Status) (domain.PaymentStatus, error) {
	switch railStatus {
	case railclient.StatusPending:
		return domain.PaymentStatusPending, nil
	case railclient.StatusSuccess:
		return domain.PaymentStatusSuccess, nil
	case railclient.StatusFailure:
		return domain.PaymentStatusFailure, nil
	default:
		return "", fmt.Errorf("%w: unknown rail status %q", ErrRailStatus, railStatus)
	}
}

// --- Event publishing ---

// Event publication is fire-and-forget: a broker outage must never fail a
// ledger operation that has already been committed.

func (s *Service) publishPaymentEvent(ctx context.Context, routingKey string, payment *domain.Payment) {
	if s.eventProducer == nil {
		return
	}
	event := domain.PaymentEvent{
		PaymentID:   payment.ID,
		UUID:        payment.UUID,
		PaymentType: payment.PaymentType,
		Status:      payment.Status,
		Amount:      payment.Amount,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"failed to publish payment event\" routing_key=%s payment_id=%d error=%v", routingKey, payment.ID, err)
	}
}

func (s *Service) publishAccountEvent(ctx context.Context, routingKey string, accountID int64, accountUUID uuid.UUID, kind string) {
	if s.eventProducer == nil {
		return
	}
	event := domain.AccountEvent{
		AccountID: accountID,
		UUID:      accountUUID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"failed to publish account event\" routing_key=%s account_id=%d error=%v", routingKey, accountID, err)
	}
}
