package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/pagestack/bookstore-backend/internal/payments"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
	"github.com/pagestack/bookstore-backend/pkg/logger"
	"github.com/pagestack/bookstore-backend/pkg/metrics"
)

type reconciler interface {
	Reconcile(ctx context.Context, event payments.CheckoutSessionEvent) (*payments.ReconcileResult, error)
}

type ServiceParams struct {
	Payments reconciler
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// Service turns verified Stripe events into reconciliation calls.
type Service struct {
	payments reconciler
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{
		payments: params.Payments,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	eventType := string(event.Type)
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		// Unhandled event types are acknowledged without work.
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.metrics.IncWebhookEvent(eventType, "malformed")
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode checkout session event")
	}

	parsed := payments.CheckoutSessionEvent{
		EventID:   event.ID,
		EventType: eventType,
		SessionID: sess.ID,
		Metadata:  sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		parsed.PaymentIntentID = sess.PaymentIntent.ID
	}

	start := time.Now()
	result, err := s.payments.Reconcile(ctx, parsed)
	s.metrics.ObserveReconcile(eventType, time.Since(start))
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}

	if result.Skipped {
		s.metrics.IncWebhookEvent(eventType, "duplicate")
		return nil
	}

	s.metrics.IncWebhookEvent(eventType, "reconciled")
	if s.logg != nil && result.Payment != nil {
		logCtx := s.logg.WithPaymentID(ctx, result.Payment.ID.String())
		s.logg.Info(logCtx, fmt.Sprintf("reconciled session %s into %d orders", sess.ID, len(result.Orders)))
	}
	return nil
}
