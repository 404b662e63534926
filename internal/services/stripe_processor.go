// internal/services/stripe_processor.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/transfer"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/fieldbook/ppv-settlement/internal/config"
)

// StripeProcessor implements Processor with Stripe PaymentIntents.
type StripeProcessor struct {
	currency      string
	webhookSecret string
}

func NewStripeProcessor(cfg config.PaymentConfig) *StripeProcessor {
	// Initialize Stripe
	stripe.Key = cfg.StripeSecretKey

	return &StripeProcessor{
		currency:      cfg.Currency,
		webhookSecret: cfg.StripeWebhookSecret,
	}
}

func (p *StripeProcessor) CreateManualCaptureHold(ctx context.Context, amount int64, reference string, metadata map[string]string) (*HoldHandle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(p.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(reference)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create hold: %w", ErrProcessorFailure, err)
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) GetHold(ctx context.Context, id string) (*HoldHandle, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get hold %s: %w", ErrProcessorFailure, id, err)
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) CaptureHold(ctx context.Context, id string) (*HoldHandle, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + id)

	pi, err := paymentintent.Capture(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: capture hold %s: %w", ErrProcessorFailure, id, err)
	}
	return holdFromIntent(pi), nil
}

func (p *StripeProcessor) CancelHold(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(id, params); err != nil {
		return fmt.Errorf("%w: cancel hold %s: %w", ErrProcessorFailure, id, err)
	}
	return nil
}

func (p *StripeProcessor) CreateImmediateCharge(ctx context.Context, amount int64, reference string, metadata map[string]string) (*ChargeHandle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(p.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(reference)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create charge: %w", ErrProcessorFailure, err)
	}
	return &ChargeHandle{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Status:       holdStatus(pi.Status),
	}, nil
}

func (p *StripeProcessor) CreateTransfer(ctx context.Context, amount int64, destination, reference string) (*TransferHandle, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(p.currency),
		Destination:   stripe.String(destination),
		TransferGroup: stripe.String(reference),
	}
	params.Context = ctx
	params.SetIdempotencyKey(reference)

	t, err := transfer.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create transfer: %w", ErrProcessorFailure, err)
	}
	return &TransferHandle{ID: t.ID, Amount: t.Amount}, nil
}

func (p *StripeProcessor) VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if event.Data != nil && len(event.Data.Raw) > 0 {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to parse event payload: %w", err)
		}
		out.PaymentIntentID = pi.ID
		out.Amount = pi.Amount
		out.Metadata = pi.Metadata
	}

	return out, nil
}

func holdFromIntent(pi *stripe.PaymentIntent) *HoldHandle {
	return &HoldHandle{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Status:       holdStatus(pi.Status),
		CreatedAt:    time.Unix(pi.Created, 0).UTC(),
	}
}

func holdStatus(status stripe.PaymentIntentStatus) ProcessorHoldStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return HoldCapturable
	case stripe.PaymentIntentStatusProcessing:
		return HoldProcessing
	case stripe.PaymentIntentStatusSucceeded:
		return HoldSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return HoldCanceled
	default:
		return HoldAwaitingConfirmation
	}
}
