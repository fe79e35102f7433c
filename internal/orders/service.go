package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/outbox"
	"github.com/pagestack/bookstore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the slice of the inventory service the order flow uses.
type StockLedger interface {
	GetAvailable(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	AdjustForUpdate(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error
}

// UserDirectory resolves the account a new order belongs to.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	UpdateQuantity(ctx context.Context, input UpdateQuantityInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelOrderInput) (*models.Order, error)
	GetByID(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	TotalRevenue(ctx context.Context) (int64, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	stock  StockLedger
	users  UserDirectory
	ledger RefundLedger
	outbox outboxPublisher
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, stock StockLedger, users UserDirectory, ledger RefundLedger, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("refund ledger required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		stock:  stock,
		users:  users,
		ledger: ledger,
		outbox: outboxSvc,
	}, nil
}

// Create reserves stock and inserts the order in one transaction. The
// reservation is a conditional write, so two buyers racing for the last
// copies cannot both succeed.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	product, err := s.stock.GetAvailable(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New(),
		Email:           user.Email,
		UserID:          user.ID,
		ProductID:       product.ID,
		Quantity:        input.Quantity,
		TotalPriceCents: product.PriceCents * int64(input.Quantity),
		Status:          enums.OrderStatusCompleted,
		DeliveryStatus:  enums.DeliveryStatusPending,
		RefundStatus:    enums.RefundStatusNotRequested,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.stock.Reserve(ctx, tx, product.ID, input.Quantity); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Insert(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: user.Role},
			Data: payloads.OrderCreatedEvent{
				OrderID:         order.ID,
				ProductID:       order.ProductID,
				UserID:          order.UserID,
				Quantity:        order.Quantity,
				TotalPriceCents: order.TotalPriceCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateQuantity change-sizes an undelivered order, adjusting stock by the
// delta rather than releasing and re-reserving the whole amount.
func (s *service) UpdateQuantity(ctx context.Context, input UpdateQuantityInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeActor(order, input.Actor); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer active")
		}
		if order.DeliveryStatus != enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can only be updated while delivery is pending")
		}

		delta := input.Quantity - order.Quantity
		if delta == 0 {
			updated = order
			return nil
		}
		if err := s.stock.AdjustForUpdate(ctx, tx, order.ProductID, delta); err != nil {
			return err
		}

		unitPrice := order.TotalPriceCents / int64(order.Quantity)
		total := unitPrice * int64(input.Quantity)
		if err := repo.Update(ctx, order.ID, map[string]any{
			"quantity":          input.Quantity,
			"total_price_cents": total,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order quantity")
		}
		order.Quantity = input.Quantity
		order.TotalPriceCents = total
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type cancelOutcome struct {
	status       enums.OrderStatus
	delivery     enums.DeliveryStatus
	restoreStock bool
}

// resolveCancelTransition is the single place deciding what a cancellation
// attempt does to an order, keyed by actor role and delivery state.
func resolveCancelTransition(order *models.Order, actor Actor) (*cancelOutcome, error) {
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already cancelled")
	}
	if order.DeliveryStatus == enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivered orders cannot be cancelled")
	}

	switch actor.Role {
	case enums.UserRoleAdmin:
		// Admin revocation covers pending and shipped orders. Stock is
		// not returned: revoked units are handled out of band.
		return &cancelOutcome{
			status:       enums.OrderStatusRevoked,
			delivery:     enums.DeliveryStatusRevoked,
			restoreStock: false,
		}, nil
	case enums.UserRoleCustomer:
		if order.UserID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.DeliveryStatus != enums.DeliveryStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "shipped orders can only be revoked by an administrator")
		}
		return &cancelOutcome{
			status:       enums.OrderStatusCancelled,
			delivery:     enums.DeliveryStatusCancelled,
			restoreStock: true,
		}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
}

// Cancel applies the cancellation state machine and, when the order was paid
// through a checkout session, marks it refund-requested on both the order
// and the payment-side ledger in the same transaction.
func (s *service) Cancel(ctx context.Context, input CancelOrderInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}

		outcome, err := resolveCancelTransition(order, input.Actor)
		if err != nil {
			return err
		}

		refundStatus := order.RefundStatus
		if order.PaymentID != nil {
			refundStatus = enums.RefundStatusRequested
		}

		if err := repo.Update(ctx, order.ID, map[string]any{
			"status":          outcome.status,
			"delivery_status": outcome.delivery,
			"refund_status":   refundStatus,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if outcome.restoreStock {
			if err := s.stock.Restore(ctx, tx, order.ProductID, order.Quantity); err != nil {
				return err
			}
		}

		if order.PaymentID != nil {
			if err := s.ledger.UpsertOrderRefundStatus(ctx, tx, *order.PaymentID, order.ID, refundStatus); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment refund ledger")
			}
		}

		order.Status = outcome.status
		order.DeliveryStatus = outcome.delivery
		order.RefundStatus = refundStatus
		cancelled = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				ProductID:   order.ProductID,
				Quantity:    order.Quantity,
				CancelledAt: time.Now().UTC(),
				Reason:      input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) GetByID(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeActor(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// TotalRevenue reports gross revenue across all orders in cents.
func (s *service) TotalRevenue(ctx context.Context) (int64, error) {
	return s.repo.TotalRevenueCents(ctx)
}

func authorizeActor(order *models.Order, actor Actor) error {
	if actor.Role == enums.UserRoleAdmin {
		return nil
	}
	if order.UserID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return nil
}
