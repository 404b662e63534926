// internal/services/distribution.go
package services

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/models"
)

const (
	reasonUnclaimedOthers   = "unclaimed_other_answers"
	reasonUnclaimedHeld     = "unclaimed_no_answers"
	reasonDivisionRemainder = "division_remainder"
)

// Payout is one share owed to one answer's author.
type Payout struct {
	UserID   uuid.UUID
	AnswerID uuid.UUID
	Type     models.TransactionType
	Amount   int64
}

// DistributionPlan is the full outcome of settling a held amount. Unclaimed is
// booked to the platform so the plan always accounts for every minor unit.
type DistributionPlan struct {
	Best            *Payout
	Others          []Payout
	PerOther        int64
	Unclaimed       int64
	UnclaimedReason string
}

// Total is the amount the plan moves, including the unclaimed rollup.
func (p DistributionPlan) Total() int64 {
	total := p.Unclaimed
	if p.Best != nil {
		total += p.Best.Amount
	}
	for _, o := range p.Others {
		total += o.Amount
	}
	return total
}

func (p DistributionPlan) payouts() []Payout {
	out := make([]Payout, 0, len(p.Others)+1)
	if p.Best != nil {
		out = append(out, *p.Best)
	}
	return append(out, p.Others...)
}

type UserCredit struct {
	UserID uuid.UUID
	Amount int64
}

// CreditsByUser sums every payout per user, ordered by user id so concurrent
// settlements touch wallet rows in the same order.
func (p DistributionPlan) CreditsByUser() []UserCredit {
	sums := make(map[uuid.UUID]int64)
	for _, payout := range p.payouts() {
		sums[payout.UserID] += payout.Amount
	}

	credits := make([]UserCredit, 0, len(sums))
	for userID, amount := range sums {
		credits = append(credits, UserCredit{UserID: userID, Amount: amount})
	}
	sort.Slice(credits, func(i, j int) bool {
		return bytes.Compare(credits[i].UserID[:], credits[j].UserID[:]) < 0
	})
	return credits
}

// Recipients lists the distinct users receiving money.
func (p DistributionPlan) Recipients() []uuid.UUID {
	credits := p.CreditsByUser()
	ids := make([]uuid.UUID, len(credits))
	for i, c := range credits {
		ids[i] = c.UserID
	}
	return ids
}

// planBestDistribution pays bestAmount to the best answer and splits
// othersAmount evenly across the other eligible answers.
func planBestDistribution(best models.Answer, others []models.Answer, bestAmount, othersAmount int64) DistributionPlan {
	var plan DistributionPlan
	if bestAmount > 0 {
		plan.Best = &Payout{
			UserID:   best.ResponderID,
			AnswerID: best.ID,
			Type:     models.TransactionTypeBestAnswerShare,
			Amount:   bestAmount,
		}
	}

	splitEvenly(&plan, others, othersAmount, reasonUnclaimedOthers)
	return plan
}

// planForcedDistribution is used when no best answer was ever chosen: the whole
// held amount is shared evenly by every eligible answer.
func planForcedDistribution(answers []models.Answer, bestAmount, othersAmount int64) DistributionPlan {
	var plan DistributionPlan
	splitEvenly(&plan, answers, bestAmount+othersAmount, reasonUnclaimedHeld)
	return plan
}

func splitEvenly(plan *DistributionPlan, answers []models.Answer, amount int64, emptyReason string) {
	if amount <= 0 {
		return
	}

	n := int64(len(answers))
	if n == 0 || amount/n == 0 {
		plan.Unclaimed += amount
		plan.UnclaimedReason = emptyReason
		return
	}

	per := amount / n
	plan.PerOther = per
	for _, a := range answers {
		plan.Others = append(plan.Others, Payout{
			UserID:   a.ResponderID,
			AnswerID: a.ID,
			Type:     models.TransactionTypeOtherAnswerShare,
			Amount:   per,
		})
	}

	if rem := amount - per*n; rem > 0 {
		plan.Unclaimed += rem
		if plan.UnclaimedReason == "" {
			plan.UnclaimedReason = reasonDivisionRemainder
		}
	}
}

// shareTransactions turns a plan into ledger rows for one pool.
func shareTransactions(pool *models.PPVPool, plan DistributionPlan, source string) []models.Transaction {
	poolID := pool.ID
	rows := make([]models.Transaction, 0, len(plan.Others)+2)

	for _, payout := range plan.payouts() {
		userID := payout.UserID
		answerID := payout.AnswerID
		rows = append(rows, models.Transaction{
			Type:              payout.Type,
			Amount:            payout.Amount,
			UserID:            &userID,
			RelatedQuestionID: pool.QuestionID,
			RelatedAnswerID:   &answerID,
			PoolID:            &poolID,
			Status:            models.TransactionStatusCompleted,
			Metadata: models.JSONB{
				"pool_id": poolID.String(),
				"source":  source,
			},
		})
	}

	if plan.Unclaimed > 0 {
		rows = append(rows, models.Transaction{
			Type:              models.TransactionTypePlatformFee,
			Amount:            plan.Unclaimed,
			RelatedQuestionID: pool.QuestionID,
			PoolID:            &poolID,
			Status:            models.TransactionStatusCompleted,
			Metadata: models.JSONB{
				"pool_id": poolID.String(),
				"source":  source,
				"reason":  plan.UnclaimedReason,
			},
		})
	}

	return rows
}

// writePlan inserts the plan's ledger rows in one batch and then issues one
// wallet credit per recipient. It must run inside the caller's transaction.
func writePlan(tx *gorm.DB, wallet *WalletService, pool *models.PPVPool, plan DistributionPlan, source string) error {
	rows := shareTransactions(pool, plan, source)
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("%w: insert share transactions: %w", ErrLedgerWriteFailure, err)
	}

	for _, credit := range plan.CreditsByUser() {
		if err := wallet.CreditTx(tx, credit.UserID, credit.Amount); err != nil {
			return err
		}
	}
	return nil
}

// eligibleAnswers returns the question's non-blocked answers, oldest first.
func eligibleAnswers(tx *gorm.DB, questionID uuid.UUID) ([]models.Answer, error) {
	var answers []models.Answer
	if err := tx.Where("question_id = ? AND is_blocked = ?", questionID, false).
		Order("created_at ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	return answers, nil
}

// planForQuestion builds the plan for amounts held on behalf of a question,
// using its best answer when one has been chosen.
func planForQuestion(tx *gorm.DB, question *models.Question, bestAmount, othersAmount int64) (DistributionPlan, error) {
	answers, err := eligibleAnswers(tx, question.ID)
	if err != nil {
		return DistributionPlan{}, err
	}

	if question.BestAnswerID == nil {
		return planForcedDistribution(answers, bestAmount, othersAmount), nil
	}

	var best *models.Answer
	others := make([]models.Answer, 0, len(answers))
	for i := range answers {
		if answers[i].ID == *question.BestAnswerID {
			best = &answers[i]
			continue
		}
		others = append(others, answers[i])
	}
	if best == nil {
		// Best answer was blocked after selection; its share goes to everyone else.
		return planForcedDistribution(others, bestAmount, othersAmount), nil
	}
	return planBestDistribution(*best, others, bestAmount, othersAmount), nil
}
