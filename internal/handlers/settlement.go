// internal/handlers/settlement.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

type SettlementHandler struct {
	settlement *services.SettlementService
	scheduler  *services.SchedulerService
}

func NewSettlementHandler(settlement *services.SettlementService, scheduler *services.SchedulerService) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		scheduler:  scheduler,
	}
}

type ReconcileRequest struct {
	QuestionID   string `json:"questionId" validate:"required,uuid"`
	BestAnswerID string `json:"bestAnswerId" validate:"required,uuid"`
}

type BestAnswerRequest struct {
	AnswerID string `json:"answerId" validate:"required,uuid"`
}

// DistributionView is the wire shape of a settlement. OtherAnswers is the
// amount paid to each non-best answer.
type DistributionView struct {
	Distributed      bool   `json:"distributed"`
	Reason           string `json:"reason,omitempty"`
	BestAnswer       int64  `json:"bestAnswer"`
	OtherAnswers     int64  `json:"otherAnswers"`
	OtherAnswerCount int    `json:"otherAnswerCount"`
	Unclaimed        int64  `json:"unclaimed"`
}

func newDistributionView(r *services.DistributionResult) DistributionView {
	return DistributionView{
		Distributed:      r.Distributed,
		Reason:           r.Reason,
		BestAnswer:       r.BestAnswerAmount,
		OtherAnswers:     r.PerOtherAnswer,
		OtherAnswerCount: r.OtherAnswerCount,
		Unclaimed:        r.Unclaimed,
	}
}

// POST /v1/cron/settlement-sweep
func (h *SettlementHandler) Sweep(c *gin.Context) {
	result, err := h.scheduler.RunSweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if sweepErr := result.Err(); sweepErr != nil {
		logrus.WithError(sweepErr).WithField("errors", result.Errors).Warn("Settlement sweep finished with failures")
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}

	// Per-pool failures are part of the body, not the status code.
	utils.SuccessResponse(c, result)
}

// POST /v1/settlement/reconcile
func (h *SettlementHandler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.settlement.Distribute(c.Request.Context(), uuid.MustParse(req.QuestionID), uuid.MustParse(req.BestAnswerID))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"distribution": newDistributionView(result),
	})
}

// POST /v1/questions/:id/best-answer
func (h *SettlementHandler) SelectBestAnswer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req BestAnswerRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.settlement.SelectBestAnswer(c.Request.Context(), questionID, userID, uuid.MustParse(req.AnswerID))
	if err != nil && (result == nil || !errors.Is(err, services.ErrProcessorFailure)) {
		respondError(c, err)
		return
	}

	body := gin.H{
		"distribution": newDistributionView(result.Distribution),
	}
	if result.Bounty != nil {
		body["bounty"] = gin.H{
			"paymentIntentId": result.Bounty.PaymentIntentID,
			"amount":          result.Bounty.Amount,
		}
	}
	if err != nil {
		// The answer is chosen and paid; only the bounty capture needs a retry.
		logrus.WithError(err).WithField("question_id", questionID).Error("Bounty capture failed after best answer selection")
		body["bountyError"] = "capture_pending"
	}
	utils.SuccessResponse(c, body)
}
