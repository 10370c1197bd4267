/**
 * @description
 * Event payloads published to the message broker when ledger records change.
 * Downstream consumers (audit, reconciliation, notifications) bind to the
 * routing keys declared here.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for lifecycle events on the banking events exchange.
const (
	EventPaymentCreated = "payment.created"
	EventPaymentUpdated = "payment.updated"
	EventAccountCreated = "account.created"
	EventAccountUpdated = "account.updated"
)

// PaymentEvent is the payload for payment.created and payment.updated.
type PaymentEvent struct {
	PaymentID   int64         `json:"payment_id"`
	UUID        uuid.UUID     `json:"uuid"`
	PaymentType PaymentType   `json:"payment_type"`
	Status      PaymentStatus `json:"status"`
	Amount      int64         `json:"amount"`
	Timestamp   time.Time     `json:"timestamp"`
}

// AccountEvent is the payload for account.created and account.updated.
// Kind distinguishes internal ledger accounts from linked external accounts.
type AccountEvent struct {
	AccountID int64     `json:"account_id"`
	UUID      uuid.UUID `json:"uuid"`
	Kind      string    `json:"kind"` // "internal" or "external"
	Timestamp time.Time `json:"timestamp"`
}
