// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction rows are append-only and cannot be soft deleted. A nil UserID
// marks a platform row.
type Transaction struct {
	LedgerModel
	Type              TransactionType   `json:"type" gorm:"type:varchar(30);not null;index"`
	Amount            int64             `json:"amount" gorm:"not null"`
	UserID            *uuid.UUID        `json:"user_id" gorm:"type:uuid;index"`
	RelatedQuestionID uuid.UUID         `json:"related_question_id" gorm:"type:uuid;not null;index"`
	RelatedAnswerID   *uuid.UUID        `json:"related_answer_id,omitempty" gorm:"type:uuid"`
	PoolID            *uuid.UUID        `json:"pool_id,omitempty" gorm:"type:uuid;index"`
	Status            TransactionStatus `json:"status" gorm:"type:varchar(20);default:'COMPLETED';index"`
	Metadata          JSONB             `json:"metadata" gorm:"type:jsonb"`
}

type Wallet struct {
	BaseModel
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	BalanceAvailable int64     `json:"balance_available" gorm:"not null;default:0"`
	BalancePending   int64     `json:"balance_pending" gorm:"not null;default:0"`
	TotalEarned      int64     `json:"total_earned" gorm:"not null;default:0"`
	TotalWithdrawn   int64     `json:"total_withdrawn" gorm:"not null;default:0"`
}

// EscrowHold tracks one processor-side manual-capture authorization.
type EscrowHold struct {
	BaseModel
	QuestionID      uuid.UUID  `json:"question_id" gorm:"type:uuid;not null;index"`
	PaymentIntentID string     `json:"payment_intent_id" gorm:"size:255;not null;uniqueIndex"`
	Amount          int64      `json:"amount" gorm:"not null"`
	Status          HoldStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';index"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ReplacedByID    *uuid.UUID `json:"replaced_by_id,omitempty" gorm:"type:uuid"`
}
