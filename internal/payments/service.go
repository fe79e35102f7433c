package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/internal/orders"
	"github.com/pagestack/bookstore-backend/pkg/config"
	"github.com/pagestack/bookstore-backend/pkg/db/models"
	dbtypes "github.com/pagestack/bookstore-backend/pkg/db/types"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/logger"
	"github.com/pagestack/bookstore-backend/pkg/outbox"
	"github.com/pagestack/bookstore-backend/pkg/outbox/payloads"
)

// EventCheckoutSessionCompleted is the only processor event type
// reconciliation acts on.
const EventCheckoutSessionCompleted = "checkout.session.completed"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the slice of the inventory service reconciliation uses.
type StockLedger interface {
	GetAvailable(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// UserDirectory resolves accounts for checkout and reconciliation.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service defines the payment reconciliation operations.
type Service interface {
	Reconcile(ctx context.Context, event CheckoutSessionEvent) (*ReconcileResult, error)
	IssueRefund(ctx context.Context, paymentID uuid.UUID) (*RefundResult, error)
	CreateCheckoutSession(ctx context.Context, input CreateCheckoutInput) (*ProcessorCheckoutSession, error)
}

type service struct {
	repo      Repository
	orders    orders.Repository
	stock     StockLedger
	users     UserDirectory
	processor ProcessorClient
	tx        txRunner
	outbox    outboxPublisher
	checkout  config.CheckoutConfig
	logg      *logger.Logger
}

// NewService builds a payment service with the required dependencies.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	stock StockLedger,
	users UserDirectory,
	processor ProcessorClient,
	tx txRunner,
	outboxSvc outboxPublisher,
	checkout config.CheckoutConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		orders:    ordersRepo,
		stock:     stock,
		users:     users,
		processor: processor,
		tx:        tx,
		outbox:    outboxSvc,
		checkout:  checkout,
		logg:      logg,
	}, nil
}

type sessionMetadata struct {
	userID uuid.UUID
	email  string
	items  []checkoutItem
}

// parseSessionMetadata extracts the storefront metadata written into the
// checkout session. Anything missing or unparseable is a malformed event;
// retrying a malformed event can never succeed.
func parseSessionMetadata(meta map[string]string) (*sessionMetadata, error) {
	rawUser := meta["userId"]
	if rawUser == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "session metadata missing userId")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("session metadata userId %q is not a uuid", rawUser))
	}

	email := meta["email"]
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "session metadata missing email")
	}

	rawProducts := meta["products"]
	if rawProducts == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "session metadata missing products")
	}
	var items []checkoutItem
	if err := json.Unmarshal([]byte(rawProducts), &items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "session metadata products is not valid json")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "session metadata products is empty")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("product %s has non-positive quantity", item.ProductID))
		}
	}
	return &sessionMetadata{userID: userID, email: email, items: items}, nil
}

// priceToCents converts a major-unit decimal price string to integer cents.
func priceToCents(raw string) (int64, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, fmt.Sprintf("price %q is not a decimal", raw))
	}
	if !price.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("price %q must be positive", raw))
	}
	return price.Shift(2).Round(0).IntPart(), nil
}

// Reconcile turns a verified checkout.session.completed event into one
// Payment plus one Order per line item in a single transaction. The durable
// webhook event record shares that transaction, so a redelivered event either
// finds the record (skip) or replays against nothing.
func (s *service) Reconcile(ctx context.Context, event CheckoutSessionEvent) (*ReconcileResult, error) {
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "event id is required")
	}
	if event.EventType != EventCheckoutSessionCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("unsupported event type %q", event.EventType))
	}
	if event.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "session id is required")
	}

	meta, err := parseSessionMetadata(event.Metadata)
	if err != nil {
		return nil, err
	}

	// Duplicate deliveries are settled from the durable event log before
	// anything else, so a redelivery never costs a processor round trip.
	seen, err := s.repo.WebhookEventSeen(ctx, event.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook event log")
	}
	if seen {
		return &ReconcileResult{Skipped: true}, nil
	}

	// Re-verify against the processor before trusting the event body.
	verified, err := s.processor.VerifySessionPaid(ctx, event.SessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify checkout session")
	}
	if !verified.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("session %s is not paid", event.SessionID))
	}
	paymentIntentID := event.PaymentIntentID
	if paymentIntentID == "" {
		paymentIntentID = verified.PaymentIntentID
	}
	if paymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "payment intent id is missing")
	}

	result := &ReconcileResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		duplicate, err := repo.RecordWebhookEvent(ctx, event.EventID, event.EventType)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		if duplicate {
			result.Skipped = true
			return nil
		}

		var total int64
		productIDs := make(dbtypes.UUIDArray, 0, len(meta.items))
		type pricedItem struct {
			productID uuid.UUID
			quantity  int
			unitCents int64
		}
		priced := make([]pricedItem, 0, len(meta.items))
		for _, item := range meta.items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("product id %q is not a uuid", item.ProductID))
			}
			unitCents, err := priceToCents(item.Price)
			if err != nil {
				return err
			}
			total += unitCents * int64(item.Quantity)
			productIDs = append(productIDs, productID)
			priced = append(priced, pricedItem{productID: productID, quantity: item.Quantity, unitCents: unitCents})
		}
		if total <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("session %s total must be positive, got %d cents", event.SessionID, total))
		}

		payment := &models.Payment{
			ID:               uuid.New(),
			Email:            meta.email,
			UserID:           meta.userID,
			StripePaymentID:  paymentIntentID,
			ProductIDs:       productIDs,
			TotalAmountCents: total,
			Status:           enums.PaymentStatusCompleted,
		}
		if err := repo.Insert(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment")
		}

		ordersRepo := s.orders.WithTx(tx)
		created := make([]models.Order, 0, len(priced))
		for _, item := range priced {
			if err := s.stock.Reserve(ctx, tx, item.productID, item.quantity); err != nil {
				return err
			}
			order := &models.Order{
				ID:              uuid.New(),
				Email:           meta.email,
				UserID:          meta.userID,
				ProductID:       item.productID,
				PaymentID:       &payment.ID,
				Quantity:        item.quantity,
				TotalPriceCents: item.unitCents * int64(item.quantity),
				Status:          enums.OrderStatusCompleted,
				DeliveryStatus:  enums.DeliveryStatusPending,
				RefundStatus:    enums.RefundStatusNotRequested,
			}
			if err := ordersRepo.Insert(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
			}
			if err := repo.UpsertOrderRefundStatus(ctx, tx, payment.ID, order.ID, enums.RefundStatusNotRequested); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment order ledger row")
			}
			created = append(created, *order)
		}

		result.Payment = payment
		result.Orders = created

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Data: payloads.PaymentRecordedEvent{
				PaymentID:        payment.ID,
				StripePaymentID:  payment.StripePaymentID,
				UserID:           payment.UserID,
				TotalAmountCents: payment.TotalAmountCents,
				OrderCount:       len(created),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IssueRefund refunds every cancelled, refund-requested order under the
// payment. The processor call happens inside the transaction, before any
// local write becomes visible: a declined refund aborts with no partial
// state, and a crash after the processor accepted leaves the requested
// orders eligible for the next attempt.
func (s *service) IssueRefund(ctx context.Context, paymentID uuid.UUID) (*RefundResult, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	result := &RefundResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == enums.PaymentStatusRefunded || payment.RefundedAmountCents >= payment.TotalAmountCents {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment is already fully refunded")
		}

		refundable, err := repo.ListRefundableOrders(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refundable orders")
		}
		if len(refundable) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no cancelled orders awaiting refund")
		}

		var amount int64
		orderIDs := make([]uuid.UUID, 0, len(refundable))
		for _, order := range refundable {
			amount += order.TotalPriceCents
			orderIDs = append(orderIDs, order.ID)
		}
		if amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "refundable amount must be positive")
		}
		if payment.RefundedAmountCents+amount > payment.TotalAmountCents {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund would exceed the amount paid")
		}

		refund, err := s.processor.CreateRefund(ctx, payment.StripePaymentID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create processor refund")
		}

		refunded := payment.RefundedAmountCents + amount
		status := enums.PaymentStatusPartiallyRefunded
		if refunded >= payment.TotalAmountCents {
			status = enums.PaymentStatusRefunded
		}
		if err := repo.Update(ctx, payment.ID, map[string]any{
			"refunded_amount_cents": refunded,
			"status":                status,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}

		ordersRepo := s.orders.WithTx(tx)
		for _, order := range refundable {
			if err := ordersRepo.Update(ctx, order.ID, map[string]any{
				"refund_status": enums.RefundStatusCompleted,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order refund status")
			}
			if err := repo.UpsertOrderRefundStatus(ctx, tx, payment.ID, order.ID, enums.RefundStatusCompleted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment order ledger row")
			}
		}

		payment.RefundedAmountCents = refunded
		payment.Status = status
		result.Payment = payment
		result.OrderIDs = orderIDs
		result.RefundedCents = amount
		result.ProcessorRefundID = refund.ID

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Data: payloads.RefundCompletedEvent{
				PaymentID:         payment.ID,
				OrderIDs:          orderIDs,
				RefundedCents:     amount,
				RemainingCents:    payment.TotalAmountCents - refunded,
				PaymentStatus:     status,
				ProcessorRefundID: refund.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// Queue the customer notification outside the refund transaction: a
	// failure here must not undo a refund the processor already accepted.
	notifyErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotifyRequested,
			AggregateType: enums.AggregatePayment,
			AggregateID:   result.Payment.ID,
			Version:       1,
			Data: payloads.NotificationRequestedEvent{
				UserID:    result.Payment.UserID,
				Email:     result.Payment.Email,
				PaymentID: result.Payment.ID,
				Type:      "refund_completed",
			},
		})
	})
	if notifyErr != nil && s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, result.Payment.ID.String())
		s.logg.Error(logCtx, "queue refund notification", notifyErr)
	}

	return result, nil
}

// CreateCheckoutSession prices the requested items from the catalog and
// opens a hosted checkout session carrying the reconciliation metadata.
func (s *service) CreateCheckoutSession(ctx context.Context, input CreateCheckoutInput) (*ProcessorCheckoutSession, error) {
	if input.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}

	lines := make([]ProcessorLineItem, 0, len(input.Items))
	metaItems := make([]checkoutItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		product, err := s.stock.GetAvailable(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Quantity < item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", product.ID, item.Quantity, product.Quantity))
		}
		lines = append(lines, ProcessorLineItem{
			Name:            product.Title,
			UnitAmountCents: product.PriceCents,
			Quantity:        int64(item.Quantity),
		})
		metaItems = append(metaItems, checkoutItem{
			ProductID: product.ID.String(),
			Quantity:  item.Quantity,
			Price:     decimal.NewFromInt(product.PriceCents).Shift(-2).String(),
		})
	}

	productsJSON, err := json.Marshal(metaItems)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal checkout metadata")
	}

	session, err := s.processor.CreateCheckoutSession(ctx, ProcessorCheckoutInput{
		Email:      user.Email,
		Currency:   s.checkout.Currency,
		SuccessURL: s.checkout.SuccessURL,
		CancelURL:  s.checkout.CancelURL,
		Metadata: map[string]string{
			"userId":   user.ID.String(),
			"email":    user.Email,
			"products": string(productsJSON),
		},
		Items: lines,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return session, nil
}
