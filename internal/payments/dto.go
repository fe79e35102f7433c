package payments

import (
	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
)

// CheckoutSessionEvent is the parsed `checkout.session.completed` webhook
// payload handed to reconciliation by the webhook controller.
type CheckoutSessionEvent struct {
	EventID         string
	EventType       string
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
}

// checkoutItem is one line of the session metadata products payload.
// Price is the unit price in major currency units, as the storefront
// serialized it.
type checkoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// ReconcileResult reports what a reconciliation pass did.
type ReconcileResult struct {
	Skipped bool
	Payment *models.Payment
	Orders  []models.Order
}

// RefundResult reports the refund applied to a payment.
type RefundResult struct {
	Payment           *models.Payment
	OrderIDs          []uuid.UUID
	RefundedCents     int64
	ProcessorRefundID string
}

// CreateCheckoutInput is a storefront request to open a checkout session.
type CreateCheckoutInput struct {
	Email string
	Items []CheckoutLineInput
}

// CheckoutLineInput selects a product and quantity for checkout.
type CheckoutLineInput struct {
	ProductID uuid.UUID
	Quantity  int
}
