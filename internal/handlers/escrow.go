// internal/handlers/escrow.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

type EscrowHandler struct {
	escrow *services.EscrowService
}

func NewEscrowHandler(escrow *services.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

type ReauthorizeRequest struct {
	QuestionID string `json:"questionId" validate:"required,uuid"`
}

// POST /v1/escrow/reauthorize
func (h *EscrowHandler) Reauthorize(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ReauthorizeRequest
	if !bindJSON(c, &req) {
		return
	}

	hold, err := h.escrow.Reauthorize(c.Request.Context(), uuid.MustParse(req.QuestionID), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, hold)
}
