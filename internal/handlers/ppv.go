// internal/handlers/ppv.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

type PPVHandler struct {
	pools *services.PoolService
}

func NewPPVHandler(pools *services.PoolService) *PPVHandler {
	return &PPVHandler{pools: pools}
}

// POST /v1/questions/:id/ppv
func (h *PPVHandler) StartPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	intent, err := h.pools.StartPurchase(c.Request.Context(), questionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"questionId":      intent.QuestionID,
		"paymentIntentId": intent.PaymentIntentID,
		"clientSecret":    intent.ClientSecret,
		"amount":          intent.Amount,
	})
}

// GET /v1/questions/:id/access
func (h *PPVHandler) GetAccess(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	access, err := h.pools.HasAccess(c.Request.Context(), questionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"questionId": questionID,
		"hasAccess":  access,
	})
}

// GET /v1/questions/:id/pool
func (h *PPVHandler) GetPool(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	access, err := h.pools.HasAccess(c.Request.Context(), questionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if role, _ := utils.GetRoleFromContext(c); !access && role != utils.RoleAdmin {
		utils.NotFoundResponse(c, "pool")
		return
	}

	pool, err := h.pools.GetPool(c.Request.Context(), questionID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"questionId":    pool.QuestionID,
		"status":        pool.Status,
		"totalAmount":   pool.TotalAmount,
		"heldAmount":    pool.HeldAmount(),
		"distributed":   pool.Status.IsTerminal(),
		"distributedAt": pool.DistributedAt,
	})
}
