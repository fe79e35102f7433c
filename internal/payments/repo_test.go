package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  user_id TEXT NOT NULL,
  stripe_payment_id TEXT NOT NULL,
  product_ids TEXT,
  total_amount_cents INTEGER NOT NULL,
  refunded_amount_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'completed',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  payment_id TEXT,
  quantity INTEGER NOT NULL,
  total_price_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'completed',
  delivery_status TEXT NOT NULL DEFAULT 'pending',
  refund_status TEXT NOT NULL DEFAULT 'not_requested',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS payment_orders (
  payment_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  refund_status TEXT NOT NULL DEFAULT 'not_requested',
  updated_at DATETIME,
  PRIMARY KEY (payment_id, order_id)
);`, `
CREATE TABLE IF NOT EXISTS webhook_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  processed_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_event_id ON webhook_events (event_id);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func insertPaymentRow(t *testing.T, db *gorm.DB) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:               uuid.New(),
		Email:            "reader@example.com",
		UserID:           uuid.New(),
		StripePaymentID:  "pi_" + uuid.NewString(),
		TotalAmountCents: 6000,
		Status:           enums.PaymentStatusCompleted,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func TestPaymentRepositoryInsertAndFind(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payment := &models.Payment{
		Email:            "reader@example.com",
		UserID:           uuid.New(),
		StripePaymentID:  "pi_" + uuid.NewString(),
		TotalAmountCents: 2599,
		Status:           enums.PaymentStatusCompleted,
	}
	require.NoError(t, repo.Insert(ctx, payment))
	require.NotEqual(t, uuid.Nil, payment.ID)

	got, err := repo.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StripePaymentID, got.StripePaymentID)
	assert.Equal(t, int64(2599), got.TotalAmountCents)
	assert.Empty(t, got.Orders)
}

func TestPaymentRepositoryFindMissing(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestPaymentRepositoryUpdateRefundFields(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payment := insertPaymentRow(t, db)
	require.NoError(t, repo.Update(ctx, payment.ID, map[string]any{
		"refunded_amount_cents": int64(2500),
		"status":                enums.PaymentStatusPartiallyRefunded,
	}))

	got, err := repo.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.RefundedAmountCents)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, got.Status)
}

func TestListRefundableOrdersFiltersState(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payment := insertPaymentRow(t, db)
	rows := []models.Order{
		{ID: uuid.New(), Email: payment.Email, UserID: payment.UserID, ProductID: uuid.New(), PaymentID: &payment.ID,
			Quantity: 1, TotalPriceCents: 2500, Status: enums.OrderStatusCancelled, DeliveryStatus: enums.DeliveryStatusCancelled, RefundStatus: enums.RefundStatusRequested},
		{ID: uuid.New(), Email: payment.Email, UserID: payment.UserID, ProductID: uuid.New(), PaymentID: &payment.ID,
			Quantity: 1, TotalPriceCents: 1500, Status: enums.OrderStatusCompleted, DeliveryStatus: enums.DeliveryStatusPending, RefundStatus: enums.RefundStatusNotRequested},
		{ID: uuid.New(), Email: payment.Email, UserID: payment.UserID, ProductID: uuid.New(), PaymentID: &payment.ID,
			Quantity: 1, TotalPriceCents: 2000, Status: enums.OrderStatusCancelled, DeliveryStatus: enums.DeliveryStatusCancelled, RefundStatus: enums.RefundStatusCompleted},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	refundable, err := repo.ListRefundableOrders(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, refundable, 1)
	assert.Equal(t, rows[0].ID, refundable[0].ID)
	assert.Equal(t, int64(2500), refundable[0].TotalPriceCents)
}

func TestUpsertOrderRefundStatus(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	paymentID := uuid.New()
	orderID := uuid.New()

	require.NoError(t, repo.UpsertOrderRefundStatus(ctx, db, paymentID, orderID, enums.RefundStatusNotRequested))
	require.NoError(t, repo.UpsertOrderRefundStatus(ctx, db, paymentID, orderID, enums.RefundStatusCompleted))

	var rows []models.PaymentOrder
	require.NoError(t, db.Where("payment_id = ?", paymentID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.RefundStatusCompleted, rows[0].RefundStatus)
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	eventID := "evt_" + uuid.NewString()

	duplicate, err := repo.RecordWebhookEvent(ctx, eventID, "checkout.session.completed")
	require.NoError(t, err)
	assert.False(t, duplicate)

	duplicate, err = repo.RecordWebhookEvent(ctx, eventID, "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, duplicate)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("event_id = ?", eventID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookEventSeen(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	eventID := "evt_" + uuid.NewString()

	seen, err := repo.WebhookEventSeen(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = repo.RecordWebhookEvent(ctx, eventID, "checkout.session.completed")
	require.NoError(t, err)

	seen, err = repo.WebhookEventSeen(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, seen)
}
