// internal/services/escrow_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
)

const auditActionReauthorize = "escrow.reauthorize"

type EscrowService struct {
	db        *gorm.DB
	processor Processor
	wallet    *WalletService
	notifier  *NotificationService
	metrics   *metrics.Metrics
	holdTTL   time.Duration
	now       func() time.Time
}

type HoldResult struct {
	PaymentIntentID string    `json:"paymentIntentId"`
	ClientSecret    string    `json:"clientSecret"`
	ExpiresAt       time.Time `json:"expiresAt"`
	Reused          bool      `json:"reused"`
}

type BountyCapture struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	AnswererID      uuid.UUID `json:"answerer_id"`
	Amount          int64     `json:"amount"`
}

func NewEscrowService(db *gorm.DB, processor Processor, wallet *WalletService, notifier *NotificationService, m *metrics.Metrics, holdTTL time.Duration) *EscrowService {
	return &EscrowService{
		db:        db,
		processor: processor,
		wallet:    wallet,
		notifier:  notifier,
		metrics:   m,
		holdTTL:   holdTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reauthorize returns a capturable hold for the question's bounty. A hold
// still inside its window is returned unchanged; anything else is cancelled
// and replaced. Callers that do not own the question get ErrQuestionNotFound.
func (s *EscrowService) Reauthorize(ctx context.Context, questionID, userID uuid.UUID) (*HoldResult, error) {
	var question models.Question
	if err := s.db.WithContext(ctx).First(&question, "id = ?", questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if question.AskerID != userID {
		return nil, ErrQuestionNotFound
	}
	if question.BountyAmount <= 0 {
		return nil, ErrNoBounty
	}

	log := logrus.WithFields(logrus.Fields{
		"question_id": questionID,
		"previous_pi": question.EscrowPaymentIntentID,
	})

	previous := question.EscrowPaymentIntentID
	if previous != "" {
		existing, err := s.processor.GetHold(ctx, previous)
		if err != nil {
			log.WithError(err).Warn("Could not fetch existing hold, replacing it")
		}

		if existing != nil {
			expiresAt := existing.CreatedAt.Add(s.holdTTL)
			if existing.Status.Reusable() && s.now().Before(expiresAt) {
				s.metrics.Reauthorizations.WithLabelValues("reused").Inc()
				return &HoldResult{
					PaymentIntentID: existing.ID,
					ClientSecret:    existing.ClientSecret,
					ExpiresAt:       expiresAt,
					Reused:          true,
				}, nil
			}
			if existing.Status == HoldSucceeded {
				return nil, ErrHoldCaptured
			}
		}

		if existing == nil || existing.Status != HoldCanceled {
			if err := s.processor.CancelHold(ctx, previous); err != nil {
				log.WithError(err).Warn("Failed to cancel stale hold")
			}
		}
	}

	reference := fmt.Sprintf("bounty-%s-%d", questionID, s.now().UnixNano())
	hold, err := s.processor.CreateManualCaptureHold(ctx, question.BountyAmount, reference, map[string]string{
		metadataKeyKind:       MetadataKindBounty,
		metadataKeyQuestionID: questionID.String(),
		metadataKeyPreviousPI: previous,
	})
	if err != nil {
		s.metrics.Reauthorizations.WithLabelValues("processor_failed").Inc()
		return nil, processorError("create hold", err)
	}

	createdAt := hold.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	expiresAt := createdAt.Add(s.holdTTL)

	if err := s.persistHold(ctx, &question, userID, previous, hold, expiresAt); err != nil {
		// The new hold is tracked nowhere, so it must not stay open.
		if cancelErr := s.processor.CancelHold(ctx, hold.ID); cancelErr != nil {
			log.WithError(cancelErr).WithField("new_pi", hold.ID).Error("Failed to cancel untracked hold")
		}
		s.metrics.Reauthorizations.WithLabelValues("persist_failed").Inc()
		return nil, err
	}

	s.metrics.Reauthorizations.WithLabelValues("replaced").Inc()
	log.WithField("new_pi", hold.ID).Info("Escrow hold reauthorized")

	return &HoldResult{
		PaymentIntentID: hold.ID,
		ClientSecret:    hold.ClientSecret,
		ExpiresAt:       expiresAt,
	}, nil
}

func (s *EscrowService) persistHold(ctx context.Context, question *models.Question, userID uuid.UUID, previous string, hold *HoldHandle, expiresAt time.Time) error {
	record := models.EscrowHold{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		QuestionID:      question.ID,
		PaymentIntentID: hold.ID,
		Amount:          question.BountyAmount,
		Status:          models.HoldStatusActive,
		ExpiresAt:       expiresAt,
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Model(&models.EscrowHold{}).
			Where("question_id = ? AND status = ?", question.ID, models.HoldStatusActive).
			Updates(map[string]interface{}{
				"status":         models.HoldStatusSuperseded,
				"replaced_by_id": record.ID,
			}).Error; err != nil {
			return err
		}

		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Question{}).
			Where("id = ?", question.ID).
			Update("escrow_payment_intent_id", hold.ID).Error; err != nil {
			return err
		}

		return tx.Create(&models.AuditLog{
			UserID:       &userID,
			Action:       auditActionReauthorize,
			ResourceType: "question",
			ResourceID:   &question.ID,
			OldValues:    models.JSONB{"payment_intent_id": previous},
			NewValues: models.JSONB{
				"payment_intent_id": hold.ID,
				"amount":            question.BountyAmount,
				"expires_at":        expiresAt.Format(time.RFC3339),
			},
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to persist escrow hold: %w", err)
	}
	return nil
}

// CaptureBounty captures the question's active hold and credits the answerer.
// A hold that was already captured returns the earlier capture.
func (s *EscrowService) CaptureBounty(ctx context.Context, questionID, answererID uuid.UUID) (*BountyCapture, error) {
	var hold models.EscrowHold
	err := s.db.WithContext(ctx).
		Where("question_id = ? AND status IN ?", questionID, []models.HoldStatus{models.HoldStatusActive, models.HoldStatusCaptured}).
		Order("created_at DESC").
		First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoBounty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow hold: %w", err)
	}

	capture := &BountyCapture{
		PaymentIntentID: hold.PaymentIntentID,
		AnswererID:      answererID,
		Amount:          hold.Amount,
	}
	if hold.Status == models.HoldStatusCaptured {
		return capture, nil
	}

	// A retry after a failed local write finds the hold already captured
	// processor side and must not capture it again.
	captured, err := s.processor.GetHold(ctx, hold.PaymentIntentID)
	if err != nil || captured.Status != HoldSucceeded {
		if err != nil {
			logrus.WithError(err).WithField("payment_intent_id", hold.PaymentIntentID).Warn("Could not fetch hold before capture")
		}
		if captured, err = s.processor.CaptureHold(ctx, hold.PaymentIntentID); err != nil {
			return nil, processorError("capture hold", err)
		}
	}
	if captured.Amount > 0 {
		capture.Amount = captured.Amount
	}

	credited := false
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		res := tx.Model(&models.EscrowHold{}).
			Where("id = ? AND status = ?", hold.ID, models.HoldStatusActive).
			Update("status", models.HoldStatusCaptured)
		if res.Error != nil {
			return fmt.Errorf("failed to mark hold captured: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		holdID := hold.ID
		userID := answererID
		if err := tx.Create(&models.Transaction{
			Type:              models.TransactionTypeEscrow,
			Amount:            capture.Amount,
			UserID:            &userID,
			RelatedQuestionID: questionID,
			Status:            models.TransactionStatusCompleted,
			Metadata: models.JSONB{
				"hold_id":           holdID.String(),
				"payment_intent_id": hold.PaymentIntentID,
				"source":            "bounty",
			},
		}).Error; err != nil {
			return fmt.Errorf("%w: insert escrow transaction: %w", ErrLedgerWriteFailure, err)
		}

		credited = true
		return s.wallet.CreditTx(tx, answererID, capture.Amount)
	})
	if err != nil {
		return nil, err
	}

	if credited {
		logrus.WithFields(logrus.Fields{
			"question_id": questionID,
			"answerer_id": answererID,
			"amount":      capture.Amount,
		}).Info("Bounty captured")
		s.notifier.NotifyBounty(ctx, questionID, answererID, capture.Amount)
	}
	return capture, nil
}

// SyncHoldStatus applies a processor-side status change to the local hold.
// Only cancellation changes local state; captures go through CaptureBounty.
func (s *EscrowService) SyncHoldStatus(ctx context.Context, paymentIntentID string, status ProcessorHoldStatus) error {
	if status != HoldCanceled {
		logrus.WithFields(logrus.Fields{
			"payment_intent_id": paymentIntentID,
			"status":            status,
		}).Debug("Escrow hold status unchanged")
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.EscrowHold{}).
		Where("payment_intent_id = ? AND status = ?", paymentIntentID, models.HoldStatusActive).
		Update("status", models.HoldStatusCancelled).Error; err != nil {
		return fmt.Errorf("failed to sync hold status: %w", err)
	}
	return nil
}

// ActiveHolds counts the question's ACTIVE holds.
func (s *EscrowService) ActiveHolds(ctx context.Context, questionID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.EscrowHold{}).
		Where("question_id = ? AND status = ?", questionID, models.HoldStatusActive).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count holds: %w", err)
	}
	return count, nil
}
