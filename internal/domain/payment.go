/**
 * @description
 * This file defines the payment domain models for the banking-service.
 * A Payment is the durable ledger record of one money-movement instruction
 * dispatched to the external payment rail (ACH debit, ACH credit, or an
 * internal book transfer).
 *
 * @notes
 * - A payment's endpoints may be internal accounts (numeric ledger ids) or
 *   external accounts (opaque Plaid ids), so both sides are modeled as an
 *   explicit AccountRef sum type rather than a loosely typed field.
 * - Status transitions are monotonic: PENDING may move to SUCCESS or
 *   FAILURE; the terminal states never change again.
 */

package domain

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
)

// PaymentStatus is the settlement state of a payment as last reconciled
// with the payment rail.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailure PaymentStatus = "FAILURE"
)

// Terminal reports whether the status can never change again.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailure
}

// Valid reports whether the status is one of the known settlement states.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.Terminal()
}

// PaymentType selects the rail operation used to execute the payment.
type PaymentType string

const (
	PaymentTypeACHDebit  PaymentType = "ACH_DEBIT"
	PaymentTypeACHCredit PaymentType = "ACH_CREDIT"
	PaymentTypeBook      PaymentType = "BOOK"
)

// ErrInvalidAccountRef is returned when an account reference is neither a
// numeric internal id nor a non-empty external id string.
var ErrInvalidAccountRef = errors.New("account reference must be an integer id or a non-empty string")

// AccountRef identifies one endpoint of a payment. Exactly one of the two
// variants is set: Internal carries a ledger account id, External carries
// the opaque aggregator-issued account id.
type AccountRef struct {
	Internal *int64
	External string
}

// InternalRef builds a reference to an internal ledger account.
func InternalRef(id int64) AccountRef {
	return AccountRef{Internal: &id}
}

// ExternalRef builds a reference to a linked external account.
func ExternalRef(plaidAccountID string) AccountRef {
	return AccountRef{External: plaidAccountID}
}

// IsInternal reports whether the reference points at an internal account.
func (r AccountRef) IsInternal() bool {
	return r.Internal != nil
}

// String renders the reference the way the payment rail expects endpoint
// identifiers: the decimal id for internal accounts, the opaque id as-is
// for external accounts.
func (r AccountRef) String() string {
	if r.Internal != nil {
		return strconv.FormatInt(*r.Internal, 10)
	}
	return r.External
}

// MarshalJSON emits the internal id as a JSON number and the external id as
// a JSON string, preserving the wire shape callers already rely on.
func (r AccountRef) MarshalJSON() ([]byte, error) {
	if r.Internal != nil {
		return json.Marshal(*r.Internal)
	}
	return json.Marshal(r.External)
}

// UnmarshalJSON accepts either a JSON number (internal id) or a JSON string
// (external id).
func (r *AccountRef) UnmarshalJSON(data []byte) error {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.Internal = &id
		r.External = ""
		return nil
	}
	var ext string
	if err := json.Unmarshal(data, &ext); err == nil && ext != "" {
		r.Internal = nil
		r.External = ext
		return nil
	}
	return ErrInvalidAccountRef
}

// Payment is the append-only ledger record of a money movement. It is
// created only after the rail has acknowledged the dispatch and is mutated
// only by status reconciliation; payments are never deleted.
type Payment struct {
	ID                       int64         `json:"id"`
	UUID                     uuid.UUID     `json:"uuid"`
	SourceRoutingNumber      int64         `json:"source_routing_number"`
	DestinationRoutingNumber int64         `json:"destination_routing_number"`
	Amount                   int64         `json:"amount"` // in cents
	Status                   PaymentStatus `json:"status"`
	PaymentType              PaymentType   `json:"payment_type"`
	SourceAccountID          AccountRef    `json:"source_account_id"`
	DestinationAccountID     AccountRef    `json:"destination_account_id"`
	IdempotencyKey           string        `json:"idempotency_key"`
}

// PaymentCreateRequest is the DTO for the payment creation endpoints. The
// payment type comes from the route, not the body.
type PaymentCreateRequest struct {
	SourceRoutingNumber      int64      `json:"source_routing_number"`
	DestinationRoutingNumber int64      `json:"destination_routing_number"`
	Amount                   int64      `json:"amount"`
	SourceAccountID          AccountRef `json:"source_account_id"`
	DestinationAccountID     AccountRef `json:"destination_account_id"`
	IdempotencyKey           string     `json:"idempotency_key"`
}
