// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/models"
)

// Notification types
const (
	NotificationShareReceived  = "settlement_share"
	NotificationBountyReceived = "bounty_captured"
)

type NotificationService struct {
	db *gorm.DB
}

type NotificationRequest struct {
	UserID  uuid.UUID              `json:"user_id" validate:"required"`
	Type    string                 `json:"type" validate:"required"`
	Title   string                 `json:"title" validate:"required"`
	Message string                 `json:"message" validate:"required"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Send(ctx context.Context, req *NotificationRequest) error {
	notification := &models.Notification{
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Data:    models.JSONB(req.Data),
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// NotifySettlement sends one notification per recipient of a distribution.
// Failures are logged and never returned; the money has already moved.
func (s *NotificationService) NotifySettlement(ctx context.Context, questionID uuid.UUID, plan DistributionPlan) {
	for _, credit := range plan.CreditsByUser() {
		req := &NotificationRequest{
			UserID:  credit.UserID,
			Type:    NotificationShareReceived,
			Title:   "You earned a share of a pay-per-view pool",
			Message: fmt.Sprintf("%d has been added to your wallet.", credit.Amount),
			Data: map[string]interface{}{
				"question_id": questionID.String(),
				"amount":      credit.Amount,
			},
		}
		if err := s.Send(ctx, req); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"question_id": questionID,
				"user_id":     credit.UserID,
			}).Warn("Settlement notification failed")
		}
	}
}

func (s *NotificationService) NotifyBounty(ctx context.Context, questionID, userID uuid.UUID, amount int64) {
	req := &NotificationRequest{
		UserID:  userID,
		Type:    NotificationBountyReceived,
		Title:   "Your answer won the bounty",
		Message: fmt.Sprintf("%d has been added to your wallet.", amount),
		Data: map[string]interface{}{
			"question_id": questionID.String(),
			"amount":      amount,
		},
	}
	if err := s.Send(ctx, req); err != nil {
		logrus.WithError(err).WithField("question_id", questionID).Warn("Bounty notification failed")
	}
}

// ListForUser returns the newest notifications first.
func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return notifications, nil
}
