package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	pkgstripe "github.com/pagestack/bookstore-backend/pkg/stripe"
)

type stripeProcessor struct{}

// NewStripeProcessor wraps the configured Stripe client so the payment
// service can be tested against a fake processor.
func NewStripeProcessor(api *pkgstripe.Client) ProcessorClient {
	if api == nil {
		return nil
	}
	return &stripeProcessor{}
}

func (p *stripeProcessor) VerifySessionPaid(ctx context.Context, sessionID string) (*VerifiedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", sessionID, err)
	}
	verified := &VerifiedSession{
		SessionID:   sess.ID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: sess.AmountTotal,
	}
	if sess.PaymentIntent != nil {
		verified.PaymentIntentID = sess.PaymentIntent.ID
	}
	return verified, nil
}

func (p *stripeProcessor) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*ProcessorRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	ref, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund for %s: %w", paymentIntentID, err)
	}
	return &ProcessorRefund{ID: ref.ID, AmountCents: ref.Amount}, nil
}

func (p *stripeProcessor) CreateCheckoutSession(ctx context.Context, input ProcessorCheckoutInput) (*ProcessorCheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(input.Items))
	for _, item := range input.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(input.Currency),
				UnitAmount: stripe.Int64(item.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(input.Email),
		SuccessURL:    stripe.String(input.SuccessURL),
		CancelURL:     stripe.String(input.CancelURL),
		LineItems:     lineItems,
		Metadata:      input.Metadata,
	}
	params.Context = ctx
	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &ProcessorCheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
