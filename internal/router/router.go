// internal/router/router.go
package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/handlers"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/middleware"
	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, svc *services.Container, m *metrics.Metrics, rates middleware.RateStore) *gin.Engine {
	settlementHandler := handlers.NewSettlementHandler(svc.Settlement, svc.Scheduler)
	escrowHandler := handlers.NewEscrowHandler(svc.Escrow)
	ppvHandler := handlers.NewPPVHandler(svc.Pools)
	walletHandler := handlers.NewWalletHandler(svc.Wallet)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	webhookHandler := handlers.NewWebhookHandler(svc.Webhooks)
	healthHandler := handlers.NewHealthHandler(db, svc.Scheduler)

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	cronSecret := cfg.Settlement.CronSecretHash

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/v1")
	v1.Use(middleware.AuditLogMiddleware(db))
	{
		// Scheduler and operator routes
		v1.POST("/cron/settlement-sweep", middleware.CronSecretRequired(cronSecret), settlementHandler.Sweep)
		v1.POST("/settlement/reconcile", middleware.CronOrAdmin(cronSecret), settlementHandler.Reconcile)

		// Processor callbacks authenticate by signature
		v1.POST("/webhooks/stripe", middleware.RateLimit(rates, "webhook"), webhookHandler.Stripe)

		session := v1.Group("")
		session.Use(middleware.AuthRequired(), middleware.RateLimit(rates, "api"))
		{
			session.POST("/escrow/reauthorize", escrowHandler.Reauthorize)

			questions := session.Group("/questions/:id")
			{
				questions.POST("/ppv", ppvHandler.StartPurchase)
				questions.GET("/access", ppvHandler.GetAccess)
				questions.GET("/pool", ppvHandler.GetPool)
				questions.POST("/best-answer", settlementHandler.SelectBestAnswer)
			}

			wallet := session.Group("/wallet")
			{
				wallet.GET("", walletHandler.GetWallet)
				wallet.GET("/transactions", walletHandler.ListTransactions)
			}

			session.GET("/notifications", notificationHandler.List)
		}
	}

	return r
}
