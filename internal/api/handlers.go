/**
 * @description
 * This file contains the HTTP handlers for the banking-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Error mapping follows one taxonomy everywhere: malformed bodies are 422,
 * rule violations are 400, unknown records are 404, rail and aggregator
 * failures are 502, and idempotent replays are 201 with the prior record.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jawnt/banking-service/internal/app"
	"github.com/jawnt/banking-service/internal/domain"
	"github.com/jawnt/banking-service/internal/store"
)

// BankingHandlers holds the application service that handlers will use.
type BankingHandlers struct {
	service *app.Service
}

// NewBankingHandlers creates a new instance of BankingHandlers.
func NewBankingHandlers(service *app.Service) *BankingHandlers {
	return &BankingHandlers{service: service}
}

// --- Internal accounts ---

// CreateInternalAccountHandler handles requests to open a ledger account.
func (h *BankingHandlers) CreateInternalAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.InternalAccountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "type must be 'funding' or 'claims'")
		return
	}
	if req.AccountNumber <= 0 || req.RoutingNumber <= 0 || req.OrganizationID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "account_number, routing_number, and organization_id must be positive integers")
		return
	}

	account, err := h.service.CreateInternalAccount(r.Context(), &req)
	if err != nil {
		log.Printf("level=error component=api endpoint=create_internal_account err=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create internal account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// ListInternalAccountsHandler returns all internal accounts in creation order.
func (h *BankingHandlers) ListInternalAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListInternalAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_internal_accounts err=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list internal accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// UpdateInternalAccountHandler re-types an internal account.
func (h *BankingHandlers) UpdateInternalAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req domain.InternalAccountUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "type must be 'funding' or 'claims'")
		return
	}

	account, err := h.service.UpdateInternalAccountType(r.Context(), id, req.Type)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "Internal account not found")
			return
		}
		log.Printf("level=error component=api endpoint=update_internal_account account_id=%d err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update internal account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// DeleteInternalAccountHandler removes an internal account.
func (h *BankingHandlers) DeleteInternalAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteInternalAccount(r.Context(), id)
	if err != nil {
		log.Printf("level=error component=api endpoint=delete_internal_account account_id=%d err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete internal account")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Internal account not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- External accounts ---

// CreateExternalAccountHandler registers an external account directly.
func (h *BankingHandlers) CreateExternalAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ExternalAccountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.PlaidAccountID == "" {
		writeError(w, http.StatusUnprocessableEntity, "plaid_account_id is required")
		return
	}
	if req.AccountNumber <= 0 || req.RoutingNumber <= 0 || req.OrganizationID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "account_number, routing_number, and organization_id must be positive integers")
		return
	}

	account, err := h.service.CreateExternalAccount(r.Context(), &req)
	if err != nil {
		log.Printf("level=error component=api endpoint=create_external_account err=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create external account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// ListExternalAccountsHandler returns all linked external accounts.
func (h *BankingHandlers) ListExternalAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListExternalAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_external_accounts err=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list external accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// --- Helpers ---

func parseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid id %q", raw))
		return 0, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
