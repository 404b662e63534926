// internal/handlers/health.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/services"
)

var Version = "dev"

type HealthHandler struct {
	db        *gorm.DB
	scheduler *services.SchedulerService
}

func NewHealthHandler(db *gorm.DB, scheduler *services.SchedulerService) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"version": Version,
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		body["status"] = "degraded"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["database"] = "ok"

	if run, err := h.scheduler.LastRun(c.Request.Context()); err == nil && run != nil {
		body["lastSweep"] = gin.H{
			"at":             run.CreatedAt,
			"status":         run.Status,
			"processedCount": run.ProcessedCount,
		}
	}

	c.JSON(http.StatusOK, body)
}
