// internal/services/processor.go
package services

import (
	"context"
	"time"
)

// ProcessorHoldStatus is the vendor-neutral view of a payment intent's state.
type ProcessorHoldStatus string

const (
	// HoldAwaitingConfirmation means the client has not confirmed the intent yet.
	HoldAwaitingConfirmation ProcessorHoldStatus = "awaiting_confirmation"
	HoldCapturable           ProcessorHoldStatus = "capturable"
	HoldProcessing           ProcessorHoldStatus = "processing"
	HoldSucceeded            ProcessorHoldStatus = "succeeded"
	HoldCanceled             ProcessorHoldStatus = "canceled"
)

// Reusable reports whether a hold in this state can still be captured later
// without creating a new one.
func (s ProcessorHoldStatus) Reusable() bool {
	return s == HoldCapturable || s == HoldAwaitingConfirmation
}

type HoldHandle struct {
	ID           string
	ClientSecret string
	Amount       int64
	Status       ProcessorHoldStatus
	CreatedAt    time.Time
}

type ChargeHandle struct {
	ID           string
	ClientSecret string
	Amount       int64
	Status       ProcessorHoldStatus
}

type TransferHandle struct {
	ID     string
	Amount int64
}

// WebhookEvent is a verified processor event reduced to what settlement reads.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	Amount          int64
	Metadata        map[string]string
}

// Webhook event types handled by the service.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventAmountCapturable = "payment_intent.amount_capturable_updated"
	MetadataKindPPV       = "ppv"
	MetadataKindBounty    = "bounty"
	metadataKeyKind       = "kind"
	metadataKeyQuestionID = "question_id"
	metadataKeyUserID     = "user_id"
	metadataKeyPreviousPI = "replaces"
)

// Processor is the narrow payment processor surface settlement depends on.
// Amounts are minor units; reference is an idempotency key.
type Processor interface {
	CreateManualCaptureHold(ctx context.Context, amount int64, reference string, metadata map[string]string) (*HoldHandle, error)
	GetHold(ctx context.Context, id string) (*HoldHandle, error)
	CaptureHold(ctx context.Context, id string) (*HoldHandle, error)
	CancelHold(ctx context.Context, id string) error
	CreateImmediateCharge(ctx context.Context, amount int64, reference string, metadata map[string]string) (*ChargeHandle, error)
	CreateTransfer(ctx context.Context, amount int64, destination, reference string) (*TransferHandle, error)
	VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error)
}
