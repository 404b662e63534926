// internal/models/question.go
package models

import (
	"github.com/google/uuid"
)

// Question is owned by the marketplace; only the fields settlement reads are mapped.
type Question struct {
	BaseModel
	AskerID               uuid.UUID      `json:"asker_id" gorm:"type:uuid;not null;index"`
	Title                 string         `json:"title" gorm:"size:255;not null"`
	PPVPrice              int64          `json:"ppv_price" gorm:"not null;default:0"`
	BountyAmount          int64          `json:"bounty_amount" gorm:"not null;default:0"`
	Status                QuestionStatus `json:"status" gorm:"type:varchar(20);default:'OPEN';index"`
	BestAnswerID          *uuid.UUID     `json:"best_answer_id" gorm:"type:uuid"`
	EscrowPaymentIntentID string         `json:"escrow_payment_intent_id,omitempty" gorm:"size:255"`

	// Relationships
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:QuestionID"`
}

type Answer struct {
	BaseModel
	QuestionID  uuid.UUID `json:"question_id" gorm:"type:uuid;not null;index"`
	ResponderID uuid.UUID `json:"responder_id" gorm:"type:uuid;not null;index"`
	IsBest      bool      `json:"is_best" gorm:"default:false"`
	IsBlocked   bool      `json:"is_blocked" gorm:"default:false"`
}
