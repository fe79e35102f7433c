package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// Repository manages persistence for order records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	TotalRevenueCents(ctx context.Context) (int64, error)
}

// RefundLedger mirrors order refund-state changes into the payment-side
// ledger. Implemented by the payments repository; injected to keep this
// package free of a payments dependency.
type RefundLedger interface {
	UpsertOrderRefundStatus(ctx context.Context, tx *gorm.DB, paymentID, orderID uuid.UUID, status enums.RefundStatus) error
}
