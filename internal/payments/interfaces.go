package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// VerifiedSession is the processor's view of a checkout session.
type VerifiedSession struct {
	SessionID       string
	PaymentIntentID string
	Paid            bool
	AmountTotal     int64
}

// ProcessorRefund describes a refund accepted by the processor.
type ProcessorRefund struct {
	ID          string
	AmountCents int64
}

// ProcessorLineItem is one priced row of a checkout session.
type ProcessorLineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// ProcessorCheckoutInput carries everything needed to open a hosted
// checkout session.
type ProcessorCheckoutInput struct {
	Email      string
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
	Items      []ProcessorLineItem
}

// ProcessorCheckoutSession is the created session handle returned to clients.
type ProcessorCheckoutSession struct {
	ID  string
	URL string
}

// ProcessorClient is the payment-processor capability the reconciliation
// engine depends on. Injected so tests can substitute a fake.
type ProcessorClient interface {
	VerifySessionPaid(ctx context.Context, sessionID string) (*VerifiedSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*ProcessorRefund, error)
	CreateCheckoutSession(ctx context.Context, input ProcessorCheckoutInput) (*ProcessorCheckoutSession, error)
}

// Repository manages persistence for payments, their per-order refund
// ledger, and the durable webhook event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListRefundableOrders(ctx context.Context, paymentID uuid.UUID) ([]models.Order, error)
	UpsertOrderRefundStatus(ctx context.Context, tx *gorm.DB, paymentID, orderID uuid.UUID, status enums.RefundStatus) error
	RecordWebhookEvent(ctx context.Context, eventID, eventType string) (duplicate bool, err error)
	WebhookEventSeen(ctx context.Context, eventID string) (bool, error)
}
