package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/api/responses"
	"github.com/pagestack/bookstore-backend/api/validators"
	internalpayments "github.com/pagestack/bookstore-backend/internal/payments"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/logger"
	"github.com/pagestack/bookstore-backend/pkg/metrics"
)

// CreateCheckoutSession opens a hosted checkout session for the
// authenticated user's selected items.
func CreateCheckoutSession(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalpayments.CheckoutLineInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalpayments.CheckoutLineInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}

		session, err := svc.CreateCheckoutSession(r.Context(), internalpayments.CreateCheckoutInput{
			Email: payload.Email,
			Items: items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutSessionResponse{
			SessionID: session.ID,
			URL:       session.URL,
		})
	}
}

// IssueRefund refunds every cancelled, refund-requested order under the
// payment. Admin only; the router enforces the role.
func IssueRefund(svc internalpayments.Service, pm *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.IssueRefund(r.Context(), paymentID)
		if err != nil {
			pm.IncRefund("error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pm.IncRefund("success")

		responses.WriteSuccess(w, refundResponse{
			PaymentID:          result.Payment.ID,
			Status:             string(result.Payment.Status),
			RefundedCents:      result.RefundedCents,
			TotalRefundedCents: result.Payment.RefundedAmountCents,
			TotalAmountCents:   result.Payment.TotalAmountCents,
			RefundedOrderIDs:   result.OrderIDs,
			ProcessorRefundID:  result.ProcessorRefundID,
			ProcessedAtUnixUTC: time.Now().UTC().Unix(),
		})
	}
}

func parsePaymentID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	paymentID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return paymentID, nil
}

type checkoutSessionRequest struct {
	Email string                    `json:"email" validate:"required,email"`
	Items []checkoutSessionLineItem `json:"items" validate:"required,min=1,dive"`
}

type checkoutSessionLineItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type refundResponse struct {
	PaymentID          uuid.UUID   `json:"payment_id"`
	Status             string      `json:"status"`
	RefundedCents      int64       `json:"refunded_cents"`
	TotalRefundedCents int64       `json:"total_refunded_cents"`
	TotalAmountCents   int64       `json:"total_amount_cents"`
	RefundedOrderIDs   []uuid.UUID `json:"refunded_order_ids"`
	ProcessorRefundID  string      `json:"processor_refund_id"`
	ProcessedAtUnixUTC int64       `json:"processed_at"`
}
