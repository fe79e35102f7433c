package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pagestack/bookstore-backend/internal/orders"
	"github.com/pagestack/bookstore-backend/pkg/config"
	"github.com/pagestack/bookstore-backend/pkg/db/models"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/outbox"
)

type stubPaymentsRepo struct {
	payments      map[uuid.UUID]*models.Payment
	refundable    []models.Order
	inserted      []*models.Payment
	updates       map[uuid.UUID]map[string]any
	ledger        map[string]enums.RefundStatus
	webhookEvents map[string]bool
	insertErr     error
}

func newStubPaymentsRepo() *stubPaymentsRepo {
	return &stubPaymentsRepo{
		payments:      map[uuid.UUID]*models.Payment{},
		updates:       map[uuid.UUID]map[string]any{},
		ledger:        map[string]enums.RefundStatus{},
		webhookEvents: map[string]bool{},
	}
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) Insert(ctx context.Context, payment *models.Payment) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.payments[payment.ID] = payment
	s.inserted = append(s.inserted, payment)
	return nil
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	copied := *payment
	return &copied, nil
}

func (s *stubPaymentsRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := s.payments[id]; !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	s.updates[id] = updates
	return nil
}

func (s *stubPaymentsRepo) ListRefundableOrders(ctx context.Context, paymentID uuid.UUID) ([]models.Order, error) {
	return s.refundable, nil
}

func (s *stubPaymentsRepo) UpsertOrderRefundStatus(ctx context.Context, tx *gorm.DB, paymentID, orderID uuid.UUID, status enums.RefundStatus) error {
	s.ledger[paymentID.String()+"/"+orderID.String()] = status
	return nil
}

func (s *stubPaymentsRepo) RecordWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if s.webhookEvents[eventID] {
		return true, nil
	}
	s.webhookEvents[eventID] = true
	return false, nil
}

func (s *stubPaymentsRepo) WebhookEventSeen(ctx context.Context, eventID string) (bool, error) {
	return s.webhookEvents[eventID], nil
}

type stubOrderStore struct {
	inserted []models.Order
	updates  map[uuid.UUID]map[string]any
}

func newStubOrderStore() *stubOrderStore {
	return &stubOrderStore{updates: map[uuid.UUID]map[string]any{}}
}

func (s *stubOrderStore) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderStore) Insert(ctx context.Context, order *models.Order) error {
	s.inserted = append(s.inserted, *order)
	return nil
}

func (s *stubOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrderStore) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates[id] = updates
	return nil
}

func (s *stubOrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderStore) TotalRevenueCents(ctx context.Context) (int64, error) {
	var total int64
	for _, order := range s.inserted {
		total += order.TotalPriceCents
	}
	return total, nil
}

type stubStock struct {
	products   map[uuid.UUID]*models.Product
	reserved   map[uuid.UUID]int
	reserveErr error
}

func newStubStock(products ...*models.Product) *stubStock {
	s := &stubStock{products: map[uuid.UUID]*models.Product{}, reserved: map[uuid.UUID]int{}}
	for _, product := range products {
		s.products[product.ID] = product
	}
	return s
}

func (s *stubStock) GetAvailable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *stubStock) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if s.reserveErr != nil {
		return s.reserveErr
	}
	s.reserved[productID] += qty
	return nil
}

type stubUsers struct {
	user *models.User
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.user, nil
}

type fakeProcessor struct {
	verified    *VerifiedSession
	verifyErr   error
	verifyCalls int
	refund      *ProcessorRefund
	refundErr   error
	session     *ProcessorCheckoutSession
	refundReqs  []int64
	lastInput   ProcessorCheckoutInput
}

func (f *fakeProcessor) VerifySessionPaid(ctx context.Context, sessionID string) (*VerifiedSession, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verified, nil
}

func (f *fakeProcessor) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*ProcessorRefund, error) {
	f.refundReqs = append(f.refundReqs, amountCents)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return f.refund, nil
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, input ProcessorCheckoutInput) (*ProcessorCheckoutSession, error) {
	f.lastInput = input
	return f.session, nil
}

type paymentsOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (s *paymentsOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type paymentsTxRunner struct{}

func (paymentsTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newPaymentsTestService(
	t *testing.T,
	repo *stubPaymentsRepo,
	orderStore *stubOrderStore,
	stock *stubStock,
	users *stubUsers,
	processor *fakeProcessor,
	ob *paymentsOutbox,
) Service {
	t.Helper()
	svc, err := NewService(repo, orderStore, stock, users, processor, paymentsTxRunner{}, ob, config.CheckoutConfig{
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Currency:   "usd",
	}, nil)
	require.NoError(t, err)
	return svc
}

func paidSessionEvent(userID uuid.UUID, products string) CheckoutSessionEvent {
	return CheckoutSessionEvent{
		EventID:         "evt_" + uuid.NewString(),
		EventType:       EventCheckoutSessionCompleted,
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_test_123",
		Metadata: map[string]string{
			"userId":   userID.String(),
			"email":    "reader@example.com",
			"products": products,
		},
	}
}

func TestReconcileCreatesPaymentAndOrders(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()
	journalID := uuid.New()

	repo := newStubPaymentsRepo()
	orderStore := newStubOrderStore()
	stock := newStubStock()
	processor := &fakeProcessor{verified: &VerifiedSession{SessionID: "cs_test_123", Paid: true}}
	ob := &paymentsOutbox{}
	svc := newPaymentsTestService(t, repo, orderStore, stock, &stubUsers{}, processor, ob)

	products := `[{"productId":"` + bookID.String() + `","quantity":2,"price":"25.00"},` +
		`{"productId":"` + journalID.String() + `","quantity":1,"price":"10.50"}]`

	result, err := svc.Reconcile(context.Background(), paidSessionEvent(userID, products))
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.NotNil(t, result.Payment)

	assert.Equal(t, int64(6050), result.Payment.TotalAmountCents)
	assert.Equal(t, enums.PaymentStatusCompleted, result.Payment.Status)
	assert.Equal(t, "pi_test_123", result.Payment.StripePaymentID)
	assert.Equal(t, userID, result.Payment.UserID)

	require.Len(t, orderStore.inserted, 2)
	assert.Equal(t, 2, stock.reserved[bookID])
	assert.Equal(t, 1, stock.reserved[journalID])
	for _, order := range orderStore.inserted {
		require.NotNil(t, order.PaymentID)
		assert.Equal(t, result.Payment.ID, *order.PaymentID)
		assert.Equal(t, enums.OrderStatusCompleted, order.Status)
		assert.Equal(t, enums.DeliveryStatusPending, order.DeliveryStatus)
		assert.Equal(t, enums.RefundStatusNotRequested, order.RefundStatus)
		key := result.Payment.ID.String() + "/" + order.ID.String()
		assert.Equal(t, enums.RefundStatusNotRequested, repo.ledger[key])
	}

	require.Len(t, ob.events, 1)
	assert.Equal(t, enums.EventPaymentRecorded, ob.events[0].EventType)
}

func TestReconcileDuplicateEventSkips(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	repo := newStubPaymentsRepo()
	orderStore := newStubOrderStore()
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: true, PaymentIntentID: "pi_test_123"}}
	svc := newPaymentsTestService(t, repo, orderStore, newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	event := paidSessionEvent(userID, `[{"productId":"`+bookID.String()+`","quantity":1,"price":"12.00"}]`)
	repo.webhookEvents[event.EventID] = true

	result, err := svc.Reconcile(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Nil(t, result.Payment)
	assert.Empty(t, repo.inserted)
	assert.Empty(t, orderStore.inserted)
	// A redelivered event is settled from the event log, never re-verified.
	assert.Equal(t, 0, processor.verifyCalls)
}

func TestReconcileRejectsZeroPricedItem(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	repo := newStubPaymentsRepo()
	orderStore := newStubOrderStore()
	stock := newStubStock()
	stock.products[bookID] = &models.Product{ID: bookID, Quantity: 5, InStock: true}
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: true, PaymentIntentID: "pi_test_123"}}
	svc := newPaymentsTestService(t, repo, orderStore, stock, &stubUsers{}, processor, &paymentsOutbox{})

	event := paidSessionEvent(userID, `[{"productId":"`+bookID.String()+`","quantity":2,"price":"0.00"}]`)

	_, err := svc.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMalformed, pkgerrors.As(err).Code())
	assert.Empty(t, repo.inserted)
	assert.Empty(t, orderStore.inserted)
	assert.Empty(t, stock.reserved)
}

func TestReconcileRejectsSubCentTotal(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	repo := newStubPaymentsRepo()
	orderStore := newStubOrderStore()
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: true, PaymentIntentID: "pi_test_123"}}
	svc := newPaymentsTestService(t, repo, orderStore, newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	// Positive but rounds to zero cents, so the summed total is zero.
	event := paidSessionEvent(userID, `[{"productId":"`+bookID.String()+`","quantity":1,"price":"0.001"}]`)

	_, err := svc.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, repo.inserted)
	assert.Empty(t, orderStore.inserted)
}

func TestReconcileRejectsUnpaidSession(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	repo := newStubPaymentsRepo()
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: false}}
	svc := newPaymentsTestService(t, repo, newStubOrderStore(), newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	event := paidSessionEvent(userID, `[{"productId":"`+bookID.String()+`","quantity":1,"price":"12.00"}]`)
	_, err := svc.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, repo.inserted)
}

func TestReconcileRejectsMalformedMetadata(t *testing.T) {
	userID := uuid.New()
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: true}}
	svc := newPaymentsTestService(t, newStubPaymentsRepo(), newStubOrderStore(), newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	event := paidSessionEvent(userID, `[{"productId":"x","quantity":1,"price":"12.00"}]`)
	delete(event.Metadata, "products")

	_, err := svc.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMalformed, pkgerrors.As(err).Code())
}

func TestReconcileStockFailureAborts(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	repo := newStubPaymentsRepo()
	orderStore := newStubOrderStore()
	stock := newStubStock()
	stock.reserveErr = pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	processor := &fakeProcessor{verified: &VerifiedSession{Paid: true, PaymentIntentID: "pi_test_123"}}
	ob := &paymentsOutbox{}
	svc := newPaymentsTestService(t, repo, orderStore, stock, &stubUsers{}, processor, ob)

	event := paidSessionEvent(userID, `[{"productId":"`+bookID.String()+`","quantity":3,"price":"12.00"}]`)
	_, err := svc.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Empty(t, orderStore.inserted)
	assert.Empty(t, ob.events)
}

func refundFixture(total, refunded int64, refundableCents ...int64) (*stubPaymentsRepo, *models.Payment) {
	repo := newStubPaymentsRepo()
	payment := &models.Payment{
		ID:                  uuid.New(),
		Email:               "reader@example.com",
		UserID:              uuid.New(),
		StripePaymentID:     "pi_test_123",
		TotalAmountCents:    total,
		RefundedAmountCents: refunded,
		Status:              enums.PaymentStatusCompleted,
	}
	repo.payments[payment.ID] = payment
	for _, cents := range refundableCents {
		repo.refundable = append(repo.refundable, models.Order{
			ID:              uuid.New(),
			PaymentID:       &payment.ID,
			TotalPriceCents: cents,
			Status:          enums.OrderStatusCancelled,
			RefundStatus:    enums.RefundStatusRequested,
		})
	}
	return repo, payment
}

func TestIssueRefundPartial(t *testing.T) {
	repo, payment := refundFixture(6000, 0, 2500)
	orderStore := newStubOrderStore()
	processor := &fakeProcessor{refund: &ProcessorRefund{ID: "re_test_1", AmountCents: 2500}}
	ob := &paymentsOutbox{}
	svc := newPaymentsTestService(t, repo, orderStore, newStubStock(), &stubUsers{}, processor, ob)

	result, err := svc.IssueRefund(context.Background(), payment.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2500), result.RefundedCents)
	assert.Equal(t, "re_test_1", result.ProcessorRefundID)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, result.Payment.Status)
	assert.Equal(t, int64(2500), result.Payment.RefundedAmountCents)
	require.Equal(t, []int64{2500}, processor.refundReqs)

	updates := repo.updates[payment.ID]
	require.NotNil(t, updates)
	assert.Equal(t, int64(2500), updates["refunded_amount_cents"])
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, updates["status"])

	require.Len(t, result.OrderIDs, 1)
	orderUpdates := orderStore.updates[result.OrderIDs[0]]
	require.NotNil(t, orderUpdates)
	assert.Equal(t, enums.RefundStatusCompleted, orderUpdates["refund_status"])
	key := payment.ID.String() + "/" + result.OrderIDs[0].String()
	assert.Equal(t, enums.RefundStatusCompleted, repo.ledger[key])

	require.Len(t, ob.events, 2)
	assert.Equal(t, enums.EventRefundCompleted, ob.events[0].EventType)
	assert.Equal(t, enums.EventNotifyRequested, ob.events[1].EventType)
}

func TestIssueRefundFullMarksPaymentRefunded(t *testing.T) {
	repo, payment := refundFixture(6000, 3500, 2500)
	processor := &fakeProcessor{refund: &ProcessorRefund{ID: "re_test_2", AmountCents: 2500}}
	svc := newPaymentsTestService(t, repo, newStubOrderStore(), newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	result, err := svc.IssueRefund(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, result.Payment.Status)
	assert.Equal(t, int64(6000), result.Payment.RefundedAmountCents)
}

func TestIssueRefundAlreadyFullyRefunded(t *testing.T) {
	repo, payment := refundFixture(6000, 6000, 2500)
	processor := &fakeProcessor{}
	svc := newPaymentsTestService(t, repo, newStubOrderStore(), newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	_, err := svc.IssueRefund(context.Background(), payment.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Empty(t, processor.refundReqs)
}

func TestIssueRefundNoEligibleOrders(t *testing.T) {
	repo, payment := refundFixture(6000, 0)
	processor := &fakeProcessor{}
	svc := newPaymentsTestService(t, repo, newStubOrderStore(), newStubStock(), &stubUsers{}, processor, &paymentsOutbox{})

	_, err := svc.IssueRefund(context.Background(), payment.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, processor.refundReqs)
}

func TestIssueRefundProcessorFailureAborts(t *testing.T) {
	repo, payment := refundFixture(6000, 0, 2500)
	orderStore := newStubOrderStore()
	processor := &fakeProcessor{refundErr: assert.AnError}
	ob := &paymentsOutbox{}
	svc := newPaymentsTestService(t, repo, orderStore, newStubStock(), &stubUsers{}, processor, ob)

	_, err := svc.IssueRefund(context.Background(), payment.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Empty(t, repo.updates)
	assert.Empty(t, orderStore.updates)
	assert.Empty(t, ob.events)
}

func TestIssueRefundUnknownPayment(t *testing.T) {
	svc := newPaymentsTestService(t, newStubPaymentsRepo(), newStubOrderStore(), newStubStock(), &stubUsers{}, &fakeProcessor{}, &paymentsOutbox{})

	_, err := svc.IssueRefund(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestCreateCheckoutSessionBuildsMetadata(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "reader@example.com"}
	book := &models.Product{ID: uuid.New(), Title: "The Go Workshop", PriceCents: 1999, Quantity: 10, InStock: true}

	processor := &fakeProcessor{session: &ProcessorCheckoutSession{ID: "cs_test_456", URL: "https://checkout.example.com/cs_test_456"}}
	svc := newPaymentsTestService(t, newStubPaymentsRepo(), newStubOrderStore(), newStubStock(book), &stubUsers{user: user}, processor, &paymentsOutbox{})

	session, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutInput{
		Email: "reader@example.com",
		Items: []CheckoutLineInput{{ProductID: book.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_456", session.ID)

	input := processor.lastInput
	assert.Equal(t, "reader@example.com", input.Email)
	assert.Equal(t, "usd", input.Currency)
	assert.Equal(t, "https://shop.example.com/success", input.SuccessURL)
	require.Len(t, input.Items, 1)
	assert.Equal(t, "The Go Workshop", input.Items[0].Name)
	assert.Equal(t, int64(1999), input.Items[0].UnitAmountCents)
	assert.Equal(t, int64(2), input.Items[0].Quantity)

	assert.Equal(t, user.ID.String(), input.Metadata["userId"])
	assert.Contains(t, input.Metadata["products"], `"price":"19.99"`)
	assert.Contains(t, input.Metadata["products"], book.ID.String())
}

func TestCreateCheckoutSessionInsufficientStock(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "reader@example.com"}
	book := &models.Product{ID: uuid.New(), Title: "Short Run", PriceCents: 500, Quantity: 1, InStock: true}

	svc := newPaymentsTestService(t, newStubPaymentsRepo(), newStubOrderStore(), newStubStock(book), &stubUsers{user: user}, &fakeProcessor{}, &paymentsOutbox{})

	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutInput{
		Email: "reader@example.com",
		Items: []CheckoutLineInput{{ProductID: book.ID, Quantity: 3}},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreateCheckoutSessionUnknownUser(t *testing.T) {
	svc := newPaymentsTestService(t, newStubPaymentsRepo(), newStubOrderStore(), newStubStock(), &stubUsers{}, &fakeProcessor{}, &paymentsOutbox{})

	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutInput{
		Email: "ghost@example.com",
		Items: []CheckoutLineInput{{ProductID: uuid.New(), Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
