// internal/services/container.go
package services

import (
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
)

// Container holds the wired settlement services. The HTTP server, the cron
// job and the operator CLI all build one.
type Container struct {
	Wallet        *WalletService
	Notifications *NotificationService
	Escrow        *EscrowService
	Settlement    *SettlementService
	Pools         *PoolService
	Scheduler     *SchedulerService
	Webhooks      *WebhookService
}

func NewContainer(db *gorm.DB, processor Processor, m *metrics.Metrics, cfg config.SettlementConfig) *Container {
	wallet := NewWalletService(db, m)
	notifier := NewNotificationService(db)
	escrow := NewEscrowService(db, processor, wallet, notifier, m, cfg.HoldTTL)
	settlement := NewSettlementService(db, wallet, escrow, notifier, m)
	pools := NewPoolService(db, wallet, processor, notifier, m)

	return &Container{
		Wallet:        wallet,
		Notifications: notifier,
		Escrow:        escrow,
		Settlement:    settlement,
		Pools:         pools,
		Scheduler:     NewSchedulerService(db, settlement, m, cfg),
		Webhooks:      NewWebhookService(processor, pools, escrow),
	}
}
