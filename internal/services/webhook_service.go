// internal/services/webhook_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookService verifies processor events and routes them to the pool or
// escrow side depending on the kind recorded in the intent metadata.
type WebhookService struct {
	processor Processor
	pools     *PoolService
	escrow    *EscrowService
}

func NewWebhookService(processor Processor, pools *PoolService, escrow *EscrowService) *WebhookService {
	return &WebhookService{
		processor: processor,
		pools:     pools,
		escrow:    escrow,
	}
}

func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := s.processor.VerifyWebhookSignature(payload, signature)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"payment_intent_id": event.PaymentIntentID,
	})

	switch event.Metadata[metadataKeyKind] {
	case MetadataKindPPV:
		err = s.handlePurchase(ctx, event)
	case MetadataKindBounty:
		err = s.handleHold(ctx, event)
	default:
		log.Debug("Ignoring webhook event without settlement metadata")
		return event, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to apply webhook event")
		return event, err
	}

	log.Info("Webhook event applied")
	return event, nil
}

func (s *WebhookService) handlePurchase(ctx context.Context, event *WebhookEvent) error {
	questionID, err := uuid.Parse(event.Metadata[metadataKeyQuestionID])
	if err != nil {
		return fmt.Errorf("invalid question_id metadata: %w", err)
	}
	userID, err := uuid.Parse(event.Metadata[metadataKeyUserID])
	if err != nil {
		return fmt.Errorf("invalid user_id metadata: %w", err)
	}

	switch event.Type {
	case EventPaymentSucceeded:
		_, err = s.pools.ConfirmPayment(ctx, questionID, userID, event.Amount, event.PaymentIntentID)
		return err
	case EventPaymentFailed, EventPaymentCanceled:
		return s.pools.MarkPaymentFailed(ctx, questionID, userID)
	}
	return nil
}

func (s *WebhookService) handleHold(ctx context.Context, event *WebhookEvent) error {
	switch event.Type {
	case EventPaymentCanceled:
		return s.escrow.SyncHoldStatus(ctx, event.PaymentIntentID, HoldCanceled)
	case EventAmountCapturable:
		return s.escrow.SyncHoldStatus(ctx, event.PaymentIntentID, HoldCapturable)
	}
	return nil
}
