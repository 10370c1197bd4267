/**
 * @description
 * HTTP handlers for the payment endpoints: the three typed creation routes
 * (ACH debit, ACH credit, book transfer), the rail-reconciling status
 * endpoint, and the payment list.
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
	"github.com/jawnt/banking-service/internal/store"
)

// CreateACHDebitHandler handles requests to pull funds from an account.
func (h *BankingHandlers) CreateACHDebitHandler(w http.ResponseWriter, r *http.Request) {
	h.createPayment(w, r, domain.PaymentTypeACHDebit)
}

// CreateACHCreditHandler handles requests to push funds to an account.
func (h *BankingHandlers) CreateACHCreditHandler(w http.ResponseWriter, r *http.Request) {
	h.createPayment(w, r, domain.PaymentTypeACHCredit)
}

// CreateBookTransferHandler handles transfers between two internal accounts.
func (h *BankingHandlers) CreateBookTransferHandler(w http.ResponseWriter, r *http.Request) {
	h.createPayment(w, r, domain.PaymentTypeBook)
}

// createPayment is shared by the three typed creation routes. A replayed
// idempotency key returns the prior record with the same 201 the original
// submission got, so retrying clients cannot tell the difference.
func (h *BankingHandlers) createPayment(w http.ResponseWriter, r *http.Request, paymentType domain.PaymentType) {
	var req domain.PaymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	payment, replayed, err := h.service.CreatePayment(r.Context(), paymentType, &req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrMissingIdempotencyKey):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, app.ErrInvalidRoute), errors.Is(err, domain.ErrInvalidAccountRef):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			writeError(w, http.StatusBadRequest, "Referenced account does not exist")
		case errors.Is(err, app.ErrRailDispatch):
			log.Printf("level=warn component=api endpoint=create_payment payment_type=%s outcome=rail_failure err=%v", paymentType, err)
			writeError(w, http.StatusBadGateway, "Payment rail rejected the submission; please retry")
		default:
			log.Printf("level=error component=api endpoint=create_payment payment_type=%s err=%v", paymentType, err)
			writeError(w, http.StatusInternalServerError, "Failed to create payment")
		}
		return
	}

	if replayed {
		log.Printf("level=info component=api endpoint=create_payment payment_type=%s outcome=replay payment_id=%d", paymentType, payment.ID)
	}
	writeJSON(w, http.StatusCreated, payment)
}

// GetPaymentStatusHandler reconciles a payment with the rail and returns the
// up-to-date record.
func (h *BankingHandlers) GetPaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	payment, err := h.service.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "Payment not found")
		case errors.Is(err, app.ErrRailStatus):
			log.Printf("level=warn component=api endpoint=payment_status payment_id=%d outcome=rail_failure err=%v", id, err)
			writeError(w, http.StatusBadGateway, "Payment rail status check failed; please retry")
		default:
			log.Printf("level=error component=api endpoint=payment_status payment_id=%d err=%v", id, err)
			writeError(w, http.StatusInternalServerError, "Failed to check payment status")
		}
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

// ListPaymentsHandler returns all payments in creation order.
func (h *BankingHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_payments err=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list payments")
		return
	}
	writeJSON(w, http.StatusOK, payments)
}
