// internal/models/ppv.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PoolStatus string

const (
	PoolStatusPending     PoolStatus = "PENDING"
	PoolStatusDistributed PoolStatus = "DISTRIBUTED"
)

// poolTransitions is the only place pool status changes are authorised.
var poolTransitions = map[PoolStatus][]PoolStatus{
	PoolStatusPending: {PoolStatusDistributed},
}

func (s PoolStatus) Valid() bool {
	return s == PoolStatusPending || s == PoolStatusDistributed
}

func (s PoolStatus) IsTerminal() bool {
	return len(poolTransitions[s]) == 0
}

// CanTransition reports whether from -> to is an authorised pool transition.
func CanTransition(from, to PoolStatus) bool {
	for _, next := range poolTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an error naming the rejected transition.
func CheckTransition(from, to PoolStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("pool transition %s -> %s not allowed", from, to)
	}
	return nil
}

type PPVPool struct {
	BaseModel
	QuestionID         uuid.UUID  `json:"question_id" gorm:"type:uuid;not null;uniqueIndex"`
	TotalAmount        int64      `json:"total_amount" gorm:"not null;default:0"`
	PlatformAmount     int64      `json:"platform_amount" gorm:"not null;default:0"`
	AskerAmount        int64      `json:"asker_amount" gorm:"not null;default:0"`
	BestAnswerAmount   int64      `json:"best_answer_amount" gorm:"not null;default:0"`
	OtherAnswersAmount int64      `json:"other_answers_amount" gorm:"not null;default:0"`
	Status             PoolStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	DistributedAt      *time.Time `json:"distributed_at"`
}

func (PPVPool) TableName() string {
	return "ppv_pools"
}

// HeldAmount is what stays in the pool after the instant platform and asker shares.
func (p *PPVPool) HeldAmount() int64 {
	return p.BestAnswerAmount + p.OtherAnswersAmount
}

// PPVMember is also the purchaser's access record for the thread.
type PPVMember struct {
	BaseModel
	QuestionID      uuid.UUID     `json:"question_id" gorm:"type:uuid;not null;uniqueIndex:idx_ppv_members_question_user"`
	UserID          uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_ppv_members_question_user"`
	PoolID          *uuid.UUID    `json:"pool_id" gorm:"type:uuid;index"`
	PaymentAmount   int64         `json:"payment_amount" gorm:"not null;default:0"`
	PaymentStatus   PaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'PENDING';index"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty" gorm:"size:255;index"`
	FailedAttempts  int           `json:"failed_attempts" gorm:"not null;default:0"`
	PaidAt          *time.Time    `json:"paid_at"`
}

func (PPVMember) TableName() string {
	return "ppv_members"
}
