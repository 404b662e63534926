// internal/services/pool_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
)

type PoolService struct {
	db        *gorm.DB
	wallet    *WalletService
	processor Processor
	notifier  *NotificationService
	metrics   *metrics.Metrics
	now       func() time.Time
}

// PoolState is the pool after a purchase was applied. Replayed is true when
// the purchase had already been recorded and nothing changed.
type PoolState struct {
	Pool     models.PPVPool `json:"pool"`
	Shares   Shares         `json:"shares"`
	Replayed bool           `json:"replayed"`
}

type PurchaseIntent struct {
	QuestionID      uuid.UUID `json:"question_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	Amount          int64     `json:"amount"`
}

func NewPoolService(db *gorm.DB, wallet *WalletService, processor Processor, notifier *NotificationService, m *metrics.Metrics) *PoolService {
	return &PoolService{
		db:        db,
		wallet:    wallet,
		processor: processor,
		notifier:  notifier,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartPurchase opens a processor charge for the question's PPV price and
// records the purchaser as PENDING until the processor confirms it.
func (s *PoolService) StartPurchase(ctx context.Context, questionID, userID uuid.UUID) (*PurchaseIntent, error) {
	var question models.Question
	if err := s.db.WithContext(ctx).First(&question, "id = ?", questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to load question: %w", err)
	}

	if question.PPVPrice <= 0 {
		return nil, ErrPPVDisabled
	}
	if question.AskerID == userID {
		return nil, ErrOwnQuestion
	}

	var existing models.PPVMember
	if err := s.db.WithContext(ctx).
		Where("question_id = ? AND user_id = ?", questionID, userID).
		Limit(1).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}
	if existing.PaymentStatus == models.PaymentStatusPaid {
		return nil, ErrAlreadyPurchased
	}

	// Retries of one attempt share a key; a failed attempt starts a new one.
	reference := fmt.Sprintf("ppv-%s-%s-%d", questionID, userID, existing.FailedAttempts)
	charge, err := s.processor.CreateImmediateCharge(ctx, question.PPVPrice, reference, map[string]string{
		metadataKeyKind:       MetadataKindPPV,
		metadataKeyQuestionID: questionID.String(),
		metadataKeyUserID:     userID.String(),
	})
	if err != nil {
		s.metrics.Purchases.WithLabelValues("charge_failed").Inc()
		return nil, processorError("create charge", err)
	}

	member := models.PPVMember{
		QuestionID:      questionID,
		UserID:          userID,
		PaymentAmount:   question.PPVPrice,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentIntentID: charge.ID,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "question_id"}, {Name: "user_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "ppv_members.payment_status <> ?", Vars: []interface{}{models.PaymentStatusPaid}},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"payment_intent_id": charge.ID,
			"payment_amount":    question.PPVPrice,
			"payment_status":    models.PaymentStatusPending,
			"updated_at":        s.now(),
		}),
	}).Create(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to record pending purchase: %w", err)
	}

	s.metrics.Purchases.WithLabelValues("started").Inc()
	return &PurchaseIntent{
		QuestionID:      questionID,
		PaymentIntentID: charge.ID,
		ClientSecret:    charge.ClientSecret,
		Amount:          charge.Amount,
	}, nil
}

// RecordPurchase applies a confirmed PPV payment: the pool grows by amount,
// the platform fee and asker share are booked, the asker is credited and the
// purchaser is marked PAID. Everything happens in one transaction, and a
// purchaser already marked PAID is a no-op.
func (s *PoolService) RecordPurchase(ctx context.Context, questionID, userID uuid.UUID, amount int64) (*PoolState, error) {
	return s.recordPurchase(ctx, questionID, userID, amount, "")
}

// ConfirmPayment is RecordPurchase driven by a processor event.
func (s *PoolService) ConfirmPayment(ctx context.Context, questionID, userID uuid.UUID, amount int64, paymentIntentID string) (*PoolState, error) {
	return s.recordPurchase(ctx, questionID, userID, amount, paymentIntentID)
}

func (s *PoolService) recordPurchase(ctx context.Context, questionID, userID uuid.UUID, amount int64, paymentIntentID string) (*PoolState, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	shares := SplitAmount(amount)
	state := &PoolState{Shares: shares}
	var settled *DistributionPlan

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.First(&question, "id = ?", questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to load question: %w", err)
		}

		now := s.now()
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.PPVMember{
			QuestionID:      questionID,
			UserID:          userID,
			PaymentAmount:   amount,
			PaymentStatus:   models.PaymentStatusPending,
			PaymentIntentID: paymentIntentID,
		}).Error; err != nil {
			return fmt.Errorf("failed to ensure member: %w", err)
		}

		updates := map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"payment_amount": amount,
			"paid_at":        now,
			"updated_at":     now,
		}
		if paymentIntentID != "" {
			updates["payment_intent_id"] = paymentIntentID
		}
		res := tx.Model(&models.PPVMember{}).
			Where("question_id = ? AND user_id = ? AND payment_status <> ?", questionID, userID, models.PaymentStatusPaid).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark member paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			state.Replayed = true
			if err := tx.Where("question_id = ?", questionID).First(&state.Pool).Error; err != nil {
				return fmt.Errorf("failed to load pool: %w", err)
			}
			return nil
		}

		pool := models.PPVPool{
			QuestionID:         questionID,
			TotalAmount:        shares.Total,
			PlatformAmount:     shares.Platform,
			AskerAmount:        shares.Asker,
			BestAnswerAmount:   shares.BestAnswer,
			OtherAnswersAmount: shares.OtherAnswers,
			Status:             models.PoolStatusPending,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "question_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_amount":         gorm.Expr("ppv_pools.total_amount + ?", shares.Total),
				"platform_amount":      gorm.Expr("ppv_pools.platform_amount + ?", shares.Platform),
				"asker_amount":         gorm.Expr("ppv_pools.asker_amount + ?", shares.Asker),
				"best_answer_amount":   gorm.Expr("ppv_pools.best_answer_amount + ?", shares.BestAnswer),
				"other_answers_amount": gorm.Expr("ppv_pools.other_answers_amount + ?", shares.OtherAnswers),
				"updated_at":           now,
			}),
		}).Create(&pool).Error; err != nil {
			return fmt.Errorf("failed to upsert pool: %w", err)
		}
		if err := tx.Where("question_id = ?", questionID).First(&state.Pool).Error; err != nil {
			return fmt.Errorf("failed to reload pool: %w", err)
		}

		if err := s.bookInstantShares(tx, &question, &state.Pool, userID, shares); err != nil {
			return err
		}

		// Late purchase on a settled thread: its held portion is paid out now
		// under the same rules the pool was settled with.
		if state.Pool.Status == models.PoolStatusDistributed && shares.Held() > 0 {
			plan, err := planForQuestion(tx, &question, shares.BestAnswer, shares.OtherAnswers)
			if err != nil {
				return err
			}
			if err := writePlan(tx, s.wallet, &state.Pool, plan, "late_purchase"); err != nil {
				return err
			}
			settled = &plan
		}

		return tx.Model(&models.PPVMember{}).
			Where("question_id = ? AND user_id = ?", questionID, userID).
			Update("pool_id", state.Pool.ID).Error
	})
	if err != nil {
		s.metrics.Purchases.WithLabelValues("failed").Inc()
		return nil, err
	}

	if state.Replayed {
		s.metrics.Purchases.WithLabelValues("replayed").Inc()
		return state, nil
	}

	s.metrics.Purchases.WithLabelValues("recorded").Inc()
	logrus.WithFields(logrus.Fields{
		"question_id": questionID,
		"pool_id":     state.Pool.ID,
		"amount":      amount,
		"pool_total":  state.Pool.TotalAmount,
	}).Info("PPV purchase recorded")

	if settled != nil {
		s.notifier.NotifySettlement(ctx, questionID, *settled)
	}
	return state, nil
}

// bookInstantShares writes the PLATFORM_FEE and ASKER_SHARE rows for one
// purchase and credits the asker. The platform fee has no wallet.
func (s *PoolService) bookInstantShares(tx *gorm.DB, question *models.Question, pool *models.PPVPool, purchaserID uuid.UUID, shares Shares) error {
	poolID := pool.ID
	askerID := question.AskerID
	metadata := func() models.JSONB {
		return models.JSONB{
			"pool_id":      poolID.String(),
			"purchaser_id": purchaserID.String(),
			"source":       "purchase",
		}
	}

	var rows []models.Transaction
	if shares.Platform > 0 {
		rows = append(rows, models.Transaction{
			Type:              models.TransactionTypePlatformFee,
			Amount:            shares.Platform,
			RelatedQuestionID: question.ID,
			PoolID:            &poolID,
			Status:            models.TransactionStatusCompleted,
			Metadata:          metadata(),
		})
	}
	if shares.Asker > 0 {
		rows = append(rows, models.Transaction{
			Type:              models.TransactionTypeAskerShare,
			Amount:            shares.Asker,
			UserID:            &askerID,
			RelatedQuestionID: question.ID,
			PoolID:            &poolID,
			Status:            models.TransactionStatusCompleted,
			Metadata:          metadata(),
		})
	}
	if len(rows) == 0 {
		return nil
	}

	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("%w: insert purchase transactions: %w", ErrLedgerWriteFailure, err)
	}
	if shares.Asker > 0 {
		return s.wallet.CreditTx(tx, askerID, shares.Asker)
	}
	return nil
}

// MarkPaymentFailed flags a pending purchase as FAILED. Paid members are left alone.
func (s *PoolService) MarkPaymentFailed(ctx context.Context, questionID, userID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&models.PPVMember{}).
		Where("question_id = ? AND user_id = ? AND payment_status = ?", questionID, userID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":  models.PaymentStatusFailed,
			"failed_attempts": gorm.Expr("failed_attempts + 1"),
			"updated_at":      s.now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	s.metrics.Purchases.WithLabelValues("payment_failed").Inc()
	return nil
}

func (s *PoolService) HasPaid(ctx context.Context, questionID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PPVMember{}).
		Where("question_id = ? AND user_id = ? AND payment_status = ?", questionID, userID, models.PaymentStatusPaid).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return count > 0, nil
}

// HasAccess reports whether the user may read the thread: the asker always
// can, everyone else needs a PAID membership.
func (s *PoolService) HasAccess(ctx context.Context, questionID, userID uuid.UUID) (bool, error) {
	var question models.Question
	if err := s.db.WithContext(ctx).Select("id", "asker_id", "ppv_price").First(&question, "id = ?", questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrQuestionNotFound
		}
		return false, fmt.Errorf("failed to load question: %w", err)
	}
	if question.AskerID == userID || question.PPVPrice <= 0 {
		return true, nil
	}
	return s.HasPaid(ctx, questionID, userID)
}

// GetPool returns the pool for a question.
func (s *PoolService) GetPool(ctx context.Context, questionID uuid.UUID) (*models.PPVPool, error) {
	var pool models.PPVPool
	if err := s.db.WithContext(ctx).Where("question_id = ?", questionID).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to load pool: %w", err)
	}
	return &pool, nil
}

func processorError(op string, err error) error {
	if errors.Is(err, ErrProcessorFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProcessorFailure, op, err)
}
