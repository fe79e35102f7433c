package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// OrderCreatedEvent signals an order recorded during webhook reconciliation.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentID       uuid.UUID `json:"payment_id"`
	ProductID       uuid.UUID `json:"product_id"`
	UserID          uuid.UUID `json:"user_id"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
}

// OrderCancelledEvent is emitted whenever a customer cancels an undelivered order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int       `json:"quantity"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// PaymentRecordedEvent surfaces a payment created from a verified checkout session.
type PaymentRecordedEvent struct {
	PaymentID        uuid.UUID `json:"payment_id"`
	StripePaymentID  string    `json:"stripe_payment_id"`
	UserID           uuid.UUID `json:"user_id"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	OrderCount       int       `json:"order_count"`
}

// RefundCompletedEvent reports a processor refund applied to a payment.
type RefundCompletedEvent struct {
	PaymentID           uuid.UUID           `json:"payment_id"`
	OrderIDs            []uuid.UUID         `json:"order_ids"`
	RefundedCents       int64               `json:"refunded_cents"`
	RemainingCents      int64               `json:"remaining_cents"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	ProcessorRefundID   string              `json:"processor_refund_id"`
	RefundedAt          time.Time           `json:"refunded_at"`
}

// NotificationRequestedEvent tells downstream systems to notify a customer.
type NotificationRequestedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	PaymentID uuid.UUID `json:"payment_id"`
	Type      string    `json:"type"`
}
