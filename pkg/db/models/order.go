package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// Order links a purchase of one product to the payment that funded it.
// PaymentID stays nil for orders placed directly against the API and is set
// when the order is created during webhook reconciliation.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Email           string               `gorm:"column:email;not null"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	ProductID       uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	PaymentID       *uuid.UUID           `gorm:"column:payment_id;type:uuid"`
	Quantity        int                  `gorm:"column:quantity;not null"`
	TotalPriceCents int64                `gorm:"column:total_price_cents;not null"`
	Status          enums.OrderStatus    `gorm:"column:status;not null;default:'completed'"`
	DeliveryStatus  enums.DeliveryStatus `gorm:"column:delivery_status;not null;default:'pending'"`
	RefundStatus    enums.RefundStatus   `gorm:"column:refund_status;not null;default:'not_requested'"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
