package orders

import (
	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/pkg/enums"
)

// Actor identifies who is asking for an order mutation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CreateOrderInput captures a direct order placement.
type CreateOrderInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
}

// UpdateQuantityInput captures an order quantity change.
type UpdateQuantityInput struct {
	OrderID  uuid.UUID
	Actor    Actor
	Quantity int
}

// CancelOrderInput captures a cancellation or admin revocation request.
type CancelOrderInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}
