// internal/services/settlement_service.go
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

// Benign reasons a distribution did nothing.
const (
	ReasonPoolNotFound       = "pool_not_found"
	ReasonAlreadyDistributed = "already_distributed"
)

// Distribution paths, used as ledger source and metric label.
const (
	pathBestAnswer = "best_answer"
	pathForced     = "forced"
	pathRepair     = "repair"
)

type SettlementService struct {
	db       *gorm.DB
	wallet   *WalletService
	escrow   *EscrowService
	notifier *NotificationService
	metrics  *metrics.Metrics
	now      func() time.Time
}

// DistributionResult describes one settlement attempt. Distributed is false
// for the benign no-op outcomes, with Reason saying which one.
type DistributionResult struct {
	QuestionID       uuid.UUID  `json:"question_id"`
	PoolID           *uuid.UUID `json:"pool_id,omitempty"`
	Distributed      bool       `json:"distributed"`
	Reason           string     `json:"reason,omitempty"`
	BestAnswerAmount int64      `json:"best_answer_amount"`
	PerOtherAnswer   int64      `json:"per_other_answer"`
	OtherAnswerCount int        `json:"other_answer_count"`
	Unclaimed        int64      `json:"unclaimed"`
}

type BestAnswerResult struct {
	Distribution *DistributionResult `json:"distribution"`
	Bounty       *BountyCapture      `json:"bounty,omitempty"`
}

func NewSettlementService(db *gorm.DB, wallet *WalletService, escrow *EscrowService, notifier *NotificationService, m *metrics.Metrics) *SettlementService {
	return &SettlementService{
		db:       db,
		wallet:   wallet,
		escrow:   escrow,
		notifier: notifier,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Distribute settles the question's pending pool with bestAnswerID as the
// best answer. A missing or already settled pool is a no-op, not an error.
func (s *SettlementService) Distribute(ctx context.Context, questionID, bestAnswerID uuid.UUID) (*DistributionResult, error) {
	result := &DistributionResult{QuestionID: questionID}
	var plan DistributionPlan

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		pool, reason, err := pendingPool(tx, questionID)
		if err != nil {
			return err
		}
		if pool == nil {
			result.Reason = reason
			return nil
		}
		result.PoolID = &pool.ID

		var question models.Question
		if err := tx.First(&question, "id = ?", questionID).Error; err != nil {
			return fmt.Errorf("failed to load question: %w", err)
		}

		best, err := loadAnswer(tx, questionID, bestAnswerID)
		if err != nil {
			return err
		}
		if err := markBestAnswer(tx, &question, best); err != nil {
			return err
		}

		claimed, err := s.claim(tx, pool)
		if err != nil {
			return err
		}
		if !claimed {
			result.Reason = ReasonAlreadyDistributed
			return nil
		}
		if err := reloadPool(tx, pool); err != nil {
			return err
		}

		answers, err := eligibleAnswers(tx, questionID)
		if err != nil {
			return err
		}
		others := make([]models.Answer, 0, len(answers))
		for _, a := range answers {
			if a.ID != best.ID {
				others = append(others, a)
			}
		}

		plan = planBestDistribution(*best, others, pool.BestAnswerAmount, pool.OtherAnswersAmount)
		return writePlan(tx, s.wallet, pool, plan, pathBestAnswer)
	})
	if err != nil {
		s.metrics.Settlements.WithLabelValues(pathBestAnswer, "failed").Inc()
		return nil, err
	}

	s.finish(ctx, result, plan, pathBestAnswer)
	return result, nil
}

// ForceDistribute settles a pending pool without waiting for the asker. With
// no best answer the whole held amount is shared by the eligible answers.
func (s *SettlementService) ForceDistribute(ctx context.Context, questionID uuid.UUID) (*DistributionResult, error) {
	result := &DistributionResult{QuestionID: questionID}
	var plan DistributionPlan

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		pool, reason, err := pendingPool(tx, questionID)
		if err != nil {
			return err
		}
		if pool == nil {
			result.Reason = reason
			return nil
		}
		result.PoolID = &pool.ID

		var question models.Question
		if err := tx.First(&question, "id = ?", questionID).Error; err != nil {
			return fmt.Errorf("failed to load question: %w", err)
		}

		claimed, err := s.claim(tx, pool)
		if err != nil {
			return err
		}
		if !claimed {
			result.Reason = ReasonAlreadyDistributed
			return nil
		}
		if err := reloadPool(tx, pool); err != nil {
			return err
		}

		plan, err = planForQuestion(tx, &question, pool.BestAnswerAmount, pool.OtherAnswersAmount)
		if err != nil {
			return err
		}
		return writePlan(tx, s.wallet, pool, plan, pathForced)
	})
	if err != nil {
		s.metrics.Settlements.WithLabelValues(pathForced, "failed").Inc()
		return nil, err
	}

	s.finish(ctx, result, plan, pathForced)
	return result, nil
}

// SelectBestAnswer lets the asker choose the best answer, settles the pool and
// captures the bounty hold if there is one.
func (s *SettlementService) SelectBestAnswer(ctx context.Context, questionID, askerID, answerID uuid.UUID) (*BestAnswerResult, error) {
	var answer *models.Answer
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.First(&question, "id = ?", questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to load question: %w", err)
		}
		if question.AskerID != askerID {
			return ErrNotAsker
		}

		var err error
		answer, err = loadAnswer(tx, questionID, answerID)
		if err != nil {
			return err
		}
		return markBestAnswer(tx, &question, answer)
	})
	if err != nil {
		return nil, err
	}

	distribution, err := s.Distribute(ctx, questionID, answerID)
	if err != nil {
		return nil, err
	}

	result := &BestAnswerResult{Distribution: distribution}
	if s.escrow != nil {
		capture, err := s.escrow.CaptureBounty(ctx, questionID, answer.ResponderID)
		switch {
		case err == nil:
			result.Bounty = capture
		case errors.Is(err, ErrNoBounty):
		default:
			return result, fmt.Errorf("best answer recorded but bounty capture failed: %w", err)
		}
	}
	return result, nil
}

// RepairStuckPools finds pending pools whose share transactions were already
// written and retries only the status transition.
func (s *SettlementService) RepairStuckPools(ctx context.Context) (int, error) {
	var pools []models.PPVPool
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PoolStatusPending).
		Where("EXISTS (SELECT 1 FROM transactions t WHERE t.pool_id = ppv_pools.id AND t.type IN ?)", models.ShareTypes).
		Find(&pools).Error; err != nil {
		return 0, fmt.Errorf("failed to find stuck pools: %w", err)
	}

	repaired := 0
	for i := range pools {
		claimed, err := s.claim(s.db.WithContext(ctx), &pools[i])
		if err != nil {
			return repaired, err
		}
		if claimed {
			repaired++
			s.metrics.Settlements.WithLabelValues(pathRepair, "distributed").Inc()
			logrus.WithFields(logrus.Fields{
				"pool_id":     pools[i].ID,
				"question_id": pools[i].QuestionID,
			}).Warn("Repaired pool left PENDING after its shares were written")
		}
	}
	return repaired, nil
}

// claim moves the pool to DISTRIBUTED only if it is still PENDING. It reports
// false when another caller got there first. Plans must be built from amounts
// read after a successful claim: the claim holds the pool row lock, so purchases
// that committed before it are visible and later ones take the late-purchase path.
func (s *SettlementService) claim(tx *gorm.DB, pool *models.PPVPool) (bool, error) {
	if err := models.CheckTransition(pool.Status, models.PoolStatusDistributed); err != nil {
		return false, err
	}

	now := s.now()
	res := tx.Model(&models.PPVPool{}).
		Where("id = ? AND status = ?", pool.ID, models.PoolStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PoolStatusDistributed,
			"distributed_at": now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark pool distributed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	pool.Status = models.PoolStatusDistributed
	pool.DistributedAt = &now
	return true, nil
}

func (s *SettlementService) finish(ctx context.Context, result *DistributionResult, plan DistributionPlan, path string) {
	if result.Reason != "" {
		s.metrics.Settlements.WithLabelValues(path, result.Reason).Inc()
		return
	}

	result.Distributed = true
	if plan.Best != nil {
		result.BestAnswerAmount = plan.Best.Amount
	}
	result.PerOtherAnswer = plan.PerOther
	result.OtherAnswerCount = len(plan.Others)
	result.Unclaimed = plan.Unclaimed

	s.metrics.Settlements.WithLabelValues(path, "distributed").Inc()
	logrus.WithFields(logrus.Fields{
		"question_id": result.QuestionID,
		"pool_id":     result.PoolID,
		"path":        path,
		"recipients":  len(plan.Recipients()),
		"unclaimed":   plan.Unclaimed,
	}).Info("Pool distributed")

	s.notifier.NotifySettlement(ctx, result.QuestionID, plan)
}

// reloadPool refreshes pool from the row the caller has locked.
func reloadPool(tx *gorm.DB, pool *models.PPVPool) error {
	if err := tx.First(pool, "id = ?", pool.ID).Error; err != nil {
		return fmt.Errorf("failed to reload pool: %w", err)
	}
	return nil
}

// pendingPool loads the question's PENDING pool. When there is none it returns
// a nil pool and the benign reason.
func pendingPool(tx *gorm.DB, questionID uuid.UUID) (*models.PPVPool, string, error) {
	var pool models.PPVPool
	err := tx.Where("question_id = ?", questionID).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ReasonPoolNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load pool: %w", err)
	}
	if pool.Status != models.PoolStatusPending {
		return nil, ReasonAlreadyDistributed, nil
	}
	return &pool, "", nil
}

func loadAnswer(tx *gorm.DB, questionID, answerID uuid.UUID) (*models.Answer, error) {
	var answer models.Answer
	if err := tx.First(&answer, "id = ? AND question_id = ?", answerID, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to load answer: %w", err)
	}
	if answer.IsBlocked {
		return nil, ErrAnswerBlocked
	}
	return &answer, nil
}

// markBestAnswer records answer as the question's best answer. Choosing the
// same answer again is a no-op; choosing a different one is refused.
func markBestAnswer(tx *gorm.DB, question *models.Question, answer *models.Answer) error {
	if question.BestAnswerID != nil {
		if *question.BestAnswerID == answer.ID {
			return nil
		}
		return ErrBestAnswerChosen
	}

	res := tx.Model(&models.Question{}).
		Where("id = ? AND best_answer_id IS NULL", question.ID).
		Updates(map[string]interface{}{
			"best_answer_id": answer.ID,
			"status":         models.QuestionStatusAnswered,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record best answer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Question
		if err := tx.Select("id", "best_answer_id").First(&current, "id = ?", question.ID).Error; err != nil {
			return fmt.Errorf("failed to reload question: %w", err)
		}
		if current.BestAnswerID == nil || *current.BestAnswerID != answer.ID {
			return ErrBestAnswerChosen
		}
	}

	if err := tx.Model(&models.Answer{}).Where("id = ?", answer.ID).Update("is_best", true).Error; err != nil {
		return fmt.Errorf("failed to flag best answer: %w", err)
	}
	question.BestAnswerID = &answer.ID
	return nil
}
