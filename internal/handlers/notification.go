// internal/handlers/notification.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GET /v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	notifications, err := h.notifications.ListForUser(c.Request.Context(), userID, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, notifications)
}
