package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jawnt/banking-service/internal/app"
	"github.com/jawnt/banking-service/internal/domain"
	"github.com/jawnt/banking-service/internal/store"
	"github.com/jawnt/banking-service/pkg/plaidclient"
	"github.com/jawnt/banking-service/pkg/railclient"
)

const testJWTSecret = "test-secret"

type stubRail struct {
	submitErr error
	status    railclient.Status
	statusErr error
}

func (s *stubRail) ack() (*railclient.SubmissionAck, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &railclient.SubmissionAck{PaymentID: uuid.NewString(), Status: railclient.StatusPending}, nil
}

func (s *stubRail) SubmitDebit(ctx context.Context, source, destination string, amount int64, key string) (*railclient.SubmissionAck, error) {
	return s.ack()
}

func (s *stubRail) SubmitCredit(ctx context.Context, source, destination string, amount int64, key string) (*railclient.SubmissionAck, error) {
	return s.ack()
}

func (s *stubRail) SubmitBook(ctx context.Context, source, destination string, amount int64, key string) (*railclient.SubmissionAck, error) {
	return s.ack()
}

func (s *stubRail) GetPaymentStatus(ctx context.Context, paymentUUID string) (railclient.Status, error) {
	if s.statusErr != nil {
		return "", s.statusErr
	}
	if s.status == "" {
		return railclient.StatusPending, nil
	}
	return s.status, nil
}

type stubAggregator struct {
	linkToken string
	result    *plaidclient.ExchangeResult
	err       error
}

func (s *stubAggregator) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.linkToken, nil
}

func (s *stubAggregator) ExchangePublicToken(ctx context.Context, publicToken string) (*plaidclient.ExchangeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestRouter(t *testing.T, rail *stubRail, aggregator *stubAggregator) http.Handler {
	t.Helper()
	if rail == nil {
		rail = &stubRail{}
	}
	if aggregator == nil {
		aggregator = &stubAggregator{linkToken: "link-sandbox-token"}
	}
	service := app.NewService(store.NewMemoryRepository(), rail, aggregator, nil, app.DefaultEventsExchange)
	return BankingRoutes(NewBankingHandlers(service), RouterDeps{JWTSecret: testJWTSecret})
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", role))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/payments", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestRoleGating(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	// An org admin cannot touch the ledger.
	rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleOrgAdmin,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeFunding, AccountNumber: 1, RoutingNumber: 1, OrganizationID: 1})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for org_admin on internal-accounts, got %d", rec.Code)
	}

	// A superuser cannot link external accounts.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/plaid/create-link-token", RoleSuperuser, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superuser on plaid routes, got %d", rec.Code)
	}

	// Both roles may read payments.
	for _, role := range []string{RoleSuperuser, RoleOrgAdmin} {
		rec = doRequest(t, router, http.MethodGet, "/api/v1/payments", role, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s on payment list, got %d", role, rec.Code)
		}
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
}

// TestPaymentLifecycleScenario walks one organization through the whole
// flow: open two ledger accounts, move money between them, replay the
// submission, and poll for a payment that does not exist.
func TestPaymentLifecycleScenario(t *testing.T) {
	router := newTestRouter(t, &stubRail{}, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{
			Type:           domain.InternalAccountTypeFunding,
			AccountNumber:  123456789,
			RoutingNumber:  987654321,
			OrganizationID: 1,
		})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating funding account, got %d: %s", rec.Code, rec.Body.String())
	}
	var funding domain.InternalAccount
	decodeBody(t, rec, &funding)
	if funding.ID != 1 || funding.Type != domain.InternalAccountTypeFunding {
		t.Fatalf("expected funding account id=1, got id=%d type=%s", funding.ID, funding.Type)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{
			Type:           domain.InternalAccountTypeClaims,
			AccountNumber:  223456789,
			RoutingNumber:  987654321,
			OrganizationID: 1,
		})
	var claims domain.InternalAccount
	decodeBody(t, rec, &claims)
	if claims.ID != 2 {
		t.Fatalf("expected second account id=2, got %d", claims.ID)
	}

	createBody := domain.PaymentCreateRequest{
		SourceRoutingNumber:      987654321,
		DestinationRoutingNumber: 987654321,
		Amount:                   50000,
		SourceAccountID:          domain.InternalRef(funding.ID),
		DestinationAccountID:     domain.InternalRef(claims.ID),
		IdempotencyKey:           "k1",
	}
	rec = doRequest(t, router, http.MethodPost, "/api/v1/payments/ach-debit", RoleSuperuser, createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating payment, got %d: %s", rec.Code, rec.Body.String())
	}
	var payment domain.Payment
	decodeBody(t, rec, &payment)
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING, got %s", payment.Status)
	}

	// Replaying the same key returns the original record.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/payments/ach-debit", RoleSuperuser, createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on replay, got %d", rec.Code)
	}
	var replayed domain.Payment
	decodeBody(t, rec, &replayed)
	if replayed.ID != payment.ID || replayed.UUID != payment.UUID {
		t.Fatalf("replay returned a different payment: %d vs %d", replayed.ID, payment.ID)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/payments", RoleSuperuser, nil)
	var list []domain.Payment
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 payment after replay, got %d", len(list))
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/payments/999/status", RoleSuperuser, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown payment, got %d", rec.Code)
	}
}

func TestCreatePaymentErrorMapping(t *testing.T) {
	router := newTestRouter(t, &stubRail{}, nil)

	seed := func(accountNumber int64, accType domain.InternalAccountType) domain.InternalAccount {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
			domain.InternalAccountCreateRequest{Type: accType, AccountNumber: accountNumber, RoutingNumber: 987654321, OrganizationID: 1})
		var account domain.InternalAccount
		decodeBody(t, rec, &account)
		return account
	}
	funding := seed(123456789, domain.InternalAccountTypeFunding)
	claims := seed(223456789, domain.InternalAccountTypeClaims)

	t.Run("malformed body is 422", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/book", bytes.NewBufferString("{not json"))
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", RoleSuperuser))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("book with external leg is 400", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/payments/book", RoleSuperuser,
			domain.PaymentCreateRequest{
				Amount:               1000,
				SourceAccountID:      domain.InternalRef(funding.ID),
				DestinationAccountID: domain.ExternalRef("plaid-xyz"),
				IdempotencyKey:       "book-ext",
			})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown account is 400", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/payments/book", RoleSuperuser,
			domain.PaymentCreateRequest{
				Amount:               1000,
				SourceAccountID:      domain.InternalRef(funding.ID),
				DestinationAccountID: domain.InternalRef(999),
				IdempotencyKey:       "book-missing",
			})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("zero amount is 422", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/payments/book", RoleSuperuser,
			domain.PaymentCreateRequest{
				Amount:               0,
				SourceAccountID:      domain.InternalRef(funding.ID),
				DestinationAccountID: domain.InternalRef(claims.ID),
				IdempotencyKey:       "book-zero",
			})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})
}

func TestCreatePaymentRailFailureIs502(t *testing.T) {
	rail := &stubRail{submitErr: errors.New("rail down")}
	router := newTestRouter(t, rail, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeFunding, AccountNumber: 123456789, RoutingNumber: 987654321, OrganizationID: 1})
	var funding domain.InternalAccount
	decodeBody(t, rec, &funding)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeClaims, AccountNumber: 223456789, RoutingNumber: 987654321, OrganizationID: 1})
	var claims domain.InternalAccount
	decodeBody(t, rec, &claims)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/payments/book", RoleSuperuser,
		domain.PaymentCreateRequest{
			Amount:               1000,
			SourceAccountID:      domain.InternalRef(funding.ID),
			DestinationAccountID: domain.InternalRef(claims.ID),
			IdempotencyKey:       "rail-down",
		})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on rail failure, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/payments", RoleSuperuser, nil)
	var list []domain.Payment
	decodeBody(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("expected no payment recorded after 502, got %d", len(list))
	}
}

func TestInternalAccountUpdateAndDelete(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeFunding, AccountNumber: 123456789, RoutingNumber: 987654321, OrganizationID: 1})
	var account domain.InternalAccount
	decodeBody(t, rec, &account)

	rec = doRequest(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/internal-accounts/%d", account.ID), RoleSuperuser,
		domain.InternalAccountUpdateRequest{Type: domain.InternalAccountTypeClaims})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating account, got %d", rec.Code)
	}
	var updated domain.InternalAccount
	decodeBody(t, rec, &updated)
	if updated.Type != domain.InternalAccountTypeClaims {
		t.Fatalf("expected claims type, got %s", updated.Type)
	}

	rec = doRequest(t, router, http.MethodPatch, "/api/v1/internal-accounts/999", RoleSuperuser,
		domain.InternalAccountUpdateRequest{Type: domain.InternalAccountTypeClaims})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 updating unknown account, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/internal-accounts/%d", account.ID), RoleSuperuser, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting account, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/internal-accounts/%d", account.ID), RoleSuperuser, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestPaymentStatusReconciliation(t *testing.T) {
	rail := &stubRail{status: railclient.StatusSuccess}
	router := newTestRouter(t, rail, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeFunding, AccountNumber: 123456789, RoutingNumber: 987654321, OrganizationID: 1})
	var funding domain.InternalAccount
	decodeBody(t, rec, &funding)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/internal-accounts", RoleSuperuser,
		domain.InternalAccountCreateRequest{Type: domain.InternalAccountTypeClaims, AccountNumber: 223456789, RoutingNumber: 987654321, OrganizationID: 1})
	var claims domain.InternalAccount
	decodeBody(t, rec, &claims)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/payments/book", RoleSuperuser,
		domain.PaymentCreateRequest{
			Amount:               50000,
			SourceAccountID:      domain.InternalRef(funding.ID),
			DestinationAccountID: domain.InternalRef(claims.ID),
			IdempotencyKey:       "settle",
		})
	var payment domain.Payment
	decodeBody(t, rec, &payment)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/payments/%d/status", payment.ID), RoleSuperuser, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 polling status, got %d", rec.Code)
	}
	var settled domain.Payment
	decodeBody(t, rec, &settled)
	if settled.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS after reconciliation, got %s", settled.Status)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/payments", RoleSuperuser, nil)
	var list []domain.Payment
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("status polling must not create records, got %d payments", len(list))
	}
}

func TestPlaidExchangeToken(t *testing.T) {
	aggregator := &stubAggregator{
		result: &plaidclient.ExchangeResult{
			AccessToken: "access-sandbox-1",
			Accounts: []plaidclient.LinkedAccount{
				{AccountID: "plaid-chk", Name: "First Platypus Bank", Subtype: "checking", AccountNumber: 1111222233330000, RoutingNumber: 11401533},
			},
		},
	}
	router := newTestRouter(t, nil, aggregator)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/plaid/exchange-token", RoleOrgAdmin,
		exchangeTokenRequest{PublicToken: "public-sandbox-1", OrganizationID: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 exchanging token, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp exchangeTokenResponse
	decodeBody(t, rec, &resp)
	if len(resp.Accounts) != 1 || resp.Accounts[0].PlaidAccountID != "plaid-chk" {
		t.Fatalf("unexpected linked accounts: %+v", resp.Accounts)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/external-accounts", RoleOrgAdmin, nil)
	var accounts []domain.ExternalAccount
	decodeBody(t, rec, &accounts)
	if len(accounts) != 1 {
		t.Fatalf("expected 1 external account, got %d", len(accounts))
	}
}

func TestPlaidAggregatorFailureIs502(t *testing.T) {
	aggregator := &stubAggregator{err: errors.New("plaid unavailable")}
	router := newTestRouter(t, nil, aggregator)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/plaid/create-link-token", RoleOrgAdmin, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for link token failure, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/plaid/exchange-token", RoleOrgAdmin,
		exchangeTokenRequest{PublicToken: "public-sandbox-1", OrganizationID: 1})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for exchange failure, got %d", rec.Code)
	}
}

func TestPlaidNoEligibleAccountsIs400(t *testing.T) {
	aggregator := &stubAggregator{
		result: &plaidclient.ExchangeResult{
			Accounts: []plaidclient.LinkedAccount{{AccountID: "plaid-cc", Subtype: "credit card"}},
		},
	}
	router := newTestRouter(t, nil, aggregator)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/plaid/exchange-token", RoleOrgAdmin,
		exchangeTokenRequest{PublicToken: "public-sandbox-1", OrganizationID: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with no eligible accounts, got %d", rec.Code)
	}
}
