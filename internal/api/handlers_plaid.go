/**
 * @description
 * HTTP handlers for the Plaid account-linking flow: issuing a Link token for
 * the authenticated admin and exchanging the resulting public token for
 * linked external accounts.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jawnt/banking-service/internal/app"
	"github.com/jawnt/banking-service/internal/domain"
)

type exchangeTokenRequest struct {
	PublicToken    string `json:"public_token"`
	OrganizationID int64  `json:"organization_id"`
}

type exchangeTokenResponse struct {
	Message  string                   `json:"message"`
	Accounts []domain.ExternalAccount `json:"accounts"`
}

// CreateLinkTokenHandler issues a Plaid Link token for the caller.
func (h *BankingHandlers) CreateLinkTokenHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing authenticated caller")
		return
	}

	token, err := h.service.CreatePlaidLinkToken(r.Context(), claims.Subject)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_link_token outcome=aggregator_failure err=%v", err)
		writeError(w, http.StatusBadGateway, "Account aggregator is unavailable; please retry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"link_token": token})
}

// ExchangeTokenHandler trades a Plaid public token for linked external
// accounts belonging to the caller's organization.
func (h *BankingHandlers) ExchangeTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req exchangeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.PublicToken == "" || req.OrganizationID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "public_token and a positive organization_id are required")
		return
	}

	accounts, err := h.service.ExchangePlaidPublicToken(r.Context(), req.PublicToken, req.OrganizationID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNoEligibleAccounts):
			writeError(w, http.StatusBadRequest, "No eligible checking or savings accounts to link")
		case errors.Is(err, app.ErrAggregator):
			log.Printf("level=warn component=api endpoint=exchange_token outcome=aggregator_failure err=%v", err)
			writeError(w, http.StatusBadGateway, "Account aggregator is unavailable; please retry")
		default:
			log.Printf("level=error component=api endpoint=exchange_token err=%v", err)
			writeError(w, http.StatusInternalServerError, "Failed to link accounts")
		}
		return
	}

	writeJSON(w, http.StatusOK, exchangeTokenResponse{
		Message:  fmt.Sprintf("Linked %d account(s)", len(accounts)),
		Accounts: accounts,
	})
}
