package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cismedic/clinic-booking/internal/clinic"
)

// PaymentService is the ledger surface the handlers need.
type PaymentService interface {
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*clinic.Payment, error)
	SetReceiptPreference(ctx context.Context, paymentID uuid.UUID, rt clinic.ReceiptType, taxID string) error
	HandleGatewayEvent(ctx context.Context, eventType, externalPaymentID string) error
	CountPendingPayments(ctx context.Context, clientID uuid.UUID) (int, error)
}

// SweepRunner performs one expiry sweep.
type SweepRunner interface {
	Run(ctx context.Context) (clinic.SweepResult, error)
}

func getPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		pay, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(pay))
	}
}

func receiptPreferenceHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		var req ReceiptPreferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.SetReceiptPreference(r.Context(), id, clinic.ReceiptType(req.ReceiptType), req.TaxID); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func paymentWebhookHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.HandleGatewayEvent(r.Context(), req.Type, req.Data.ID); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func clientPendingPaymentCountHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "id must be a valid UUID")
			return
		}

		n, err := svc.CountPendingPayments(r.Context(), clientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

// sweepHandler exposes the expiry sweep to an external scheduler (cron).
// The shared secret keeps strangers from driving it.
func sweepHandler(sweeper SweepRunner, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Task-Secret")), []byte(secret)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden", "invalid task secret")
			return
		}

		res, err := sweeper.Run(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
