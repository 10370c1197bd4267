/**
 * @description
 * This file defines the account domain models for the banking-service.
 * Organizations hold two kinds of bank accounts: internal accounts opened on
 * our own ledger (funding or claims), and external accounts linked through
 * the Plaid aggregator.
 *
 * @notes
 * - Account and routing numbers are kept as int64 to match the wire format
 *   of the API; amounts elsewhere are integer cents for the same reason.
 * - Identifiers are assigned by the store and immutable afterwards; the UUID
 *   is the externally stable correlation id.
 */

package domain

import (
	"github.com/google/uuid"
)

// InternalAccountType enumerates the allowed internal account categories.
type InternalAccountType string

const (
	InternalAccountTypeFunding InternalAccountType = "funding"
	InternalAccountTypeClaims  InternalAccountType = "claims"
)

// Valid reports whether the type is one of the known internal categories.
func (t InternalAccountType) Valid() bool {
	return t == InternalAccountTypeFunding || t == InternalAccountTypeClaims
}

// InternalAccount is an organization bank account held on our own books.
type InternalAccount struct {
	ID             int64               `json:"id"`
	UUID           uuid.UUID           `json:"uuid"`
	Type           InternalAccountType `json:"type"`
	AccountNumber  int64               `json:"account_number"`
	RoutingNumber  int64               `json:"routing_number"`
	OrganizationID int64               `json:"organization_id"`
}

// ExternalAccount is an organization bank account at another institution,
// linked via the Plaid aggregator.
type ExternalAccount struct {
	ID             int64     `json:"id"`
	UUID           uuid.UUID `json:"uuid"`
	PlaidAccountID string    `json:"plaid_account_id"`
	AccountNumber  int64     `json:"account_number"`
	RoutingNumber  int64     `json:"routing_number"`
	OrganizationID int64     `json:"organization_id"`
	BankName       string    `json:"bank_name"`
	AccountType    string    `json:"account_type"` // "checking" or "savings"
}

// InternalAccountCreateRequest is the DTO for creating an internal account.
type InternalAccountCreateRequest struct {
	Type           InternalAccountType `json:"type"`
	AccountNumber  int64               `json:"account_number"`
	RoutingNumber  int64               `json:"routing_number"`
	OrganizationID int64               `json:"organization_id"`
}

// InternalAccountUpdateRequest is the DTO for re-typing an internal account.
type InternalAccountUpdateRequest struct {
	Type InternalAccountType `json:"type"`
}

// ExternalAccountCreateRequest is the DTO for registering an external account
// whose details were obtained out of band (the Plaid exchange flow creates
// external accounts directly).
type ExternalAccountCreateRequest struct {
	PlaidAccountID string `json:"plaid_account_id"`
	AccountNumber  int64  `json:"account_number"`
	RoutingNumber  int64  `json:"routing_number"`
	OrganizationID int64  `json:"organization_id"`
	BankName       string `json:"bank_name"`
	AccountType    string `json:"account_type"`
}
