/**
 * @description
 * Audit-log consumer for lifecycle events. The service publishes every
 * payment and account change to the banking events exchange; this consumer
 * binds its own queue and writes a structured audit line per event, so the
 * broker retains a replayable trail independent of the ledger itself.
 */

package app

import (
	"encoding/json"
	"log"

	"github.com/jawnt/banking-service/internal/domain"
)

// Auditor handles lifecycle events consumed from the broker. The queue it
// binds and the exchange it binds to come from configuration, shared with
// the producer side.
type Auditor struct{}

func NewAuditor() *Auditor {
	return &Auditor{}
}

// Bindings returns the routing-key handler map for the audit queue.
func (a *Auditor) Bindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		domain.EventPaymentCreated: a.handlePaymentEvent(domain.EventPaymentCreated),
		domain.EventPaymentUpdated: a.handlePaymentEvent(domain.EventPaymentUpdated),
		domain.EventAccountCreated: a.handleAccountEvent(domain.EventAccountCreated),
		domain.EventAccountUpdated: a.handleAccountEvent(domain.EventAccountUpdated),
	}
}

// Malformed payloads are acknowledged rather than re-queued: a message that
// cannot be decoded now will not decode on redelivery either.
func (a *Auditor) handlePaymentEvent(routingKey string) func([]byte) bool {
	return func(body []byte) bool {
		var event domain.PaymentEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("level=error component=auditor msg=\"discarding malformed payment event\" routing_key=%s error=%v", routingKey, err)
			return true
		}
		log.Printf("level=info component=auditor event=%s payment_id=%d uuid=%s type=%s status=%s amount=%d ts=%s",
			routingKey, event.PaymentID, event.UUID, event.PaymentType, event.Status, event.Amount, event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		return true
	}
}

func (a *Auditor) handleAccountEvent(routingKey string) func([]byte) bool {
	return func(body []byte) bool {
		var event domain.AccountEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("level=error component=auditor msg=\"discarding malformed account event\" routing_key=%s error=%v", routingKey, err)
			return true
		}
		log.Printf("level=info component=auditor event=%s account_id=%d uuid=%s kind=%s ts=%s",
			routingKey, event.AccountID, event.UUID, event.Kind, event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		return true
	}
}
