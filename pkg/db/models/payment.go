package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/pagestack/bookstore-backend/pkg/db/types"
	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// Payment is the aggregate root for one checkout transaction. It references
// the orders it funded through PaymentOrder ledger rows; RefundedAmountCents
// never exceeds TotalAmountCents.
type Payment struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email               string              `gorm:"column:email;not null"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	StripePaymentID     string              `gorm:"column:stripe_payment_id;not null"`
	ProductIDs          dbtypes.UUIDArray   `gorm:"column:product_ids;type:text"`
	TotalAmountCents    int64               `gorm:"column:total_amount_cents;not null"`
	RefundedAmountCents int64               `gorm:"column:refunded_amount_cents;not null;default:0"`
	Status              enums.PaymentStatus `gorm:"column:status;not null;default:'completed'"`
	Orders              []PaymentOrder      `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentOrder is the materialized per-order refund ledger kept on the
// payment side for query convenience. Order.RefundStatus is the source of
// truth; ledger rows are upserted in the same transaction as every order
// refund-state change.
type PaymentOrder struct {
	PaymentID    uuid.UUID          `gorm:"column:payment_id;type:uuid;primaryKey"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;primaryKey"`
	RefundStatus enums.RefundStatus `gorm:"column:refund_status;not null;default:'not_requested'"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
