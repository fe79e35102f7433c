package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/pagestack/bookstore-backend/pkg/db"
	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Orders").
		Where("id = ?", id).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", id))
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", id))
	}
	return nil
}

// ListRefundableOrders returns the orders under a payment that were
// cancelled and are waiting on their money back.
func (r *repository) ListRefundableOrders(ctx context.Context, paymentID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND status = ? AND refund_status = ?",
			paymentID, enums.OrderStatusCancelled, enums.RefundStatusRequested).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertOrderRefundStatus writes one payment_orders ledger row keyed by
// (payment_id, order_id), updating in place when the pair already exists.
func (r *repository) UpsertOrderRefundStatus(ctx context.Context, tx *gorm.DB, paymentID, orderID uuid.UUID, status enums.RefundStatus) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	row := models.PaymentOrder{
		PaymentID:    paymentID,
		OrderID:      orderID,
		RefundStatus: status,
		UpdatedAt:    time.Now(),
	}
	return conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}, {Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"refund_status", "updated_at"}),
	}).Create(&row).Error
}

// WebhookEventSeen reports whether a delivery of this event already
// committed. Read-only, so callers can skip duplicates before spending a
// processor round trip; RecordWebhookEvent still settles races.
func (r *repository) WebhookEventSeen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordWebhookEvent inserts the durable idempotency record for a processor
// event. A unique violation means an earlier delivery already committed, so
// the caller should acknowledge and skip.
func (r *repository) RecordWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	row := models.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_webhook_events_event_id") {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
