// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the primary key client side so rows can be referenced
// inside the same database transaction that creates them.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// LedgerModel is BaseModel without soft delete. Ledger rows are never removed.
type LedgerModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *LedgerModel) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// Enums
type QuestionStatus string

const (
	QuestionStatusOpen     QuestionStatus = "OPEN"
	QuestionStatusAnswered QuestionStatus = "ANSWERED"
	QuestionStatusClosed   QuestionStatus = "CLOSED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type TransactionType string

const (
	TransactionTypePlatformFee      TransactionType = "PLATFORM_FEE"
	TransactionTypeAskerShare       TransactionType = "ASKER_SHARE"
	TransactionTypeBestAnswerShare  TransactionType = "BEST_ANSWER_SHARE"
	TransactionTypeOtherAnswerShare TransactionType = "OTHER_ANSWER_SHARE"
	TransactionTypeEscrow           TransactionType = "ESCROW"
	TransactionTypeRefund           TransactionType = "REFUND"
)

// ShareTypes are the transaction types written by settlement, as opposed to
// the ones written at purchase time.
var ShareTypes = []TransactionType{
	TransactionTypeBestAnswerShare,
	TransactionTypeOtherAnswerShare,
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

type HoldStatus string

const (
	HoldStatusActive     HoldStatus = "ACTIVE"
	HoldStatusCancelled  HoldStatus = "CANCELLED"
	HoldStatusSuperseded HoldStatus = "SUPERSEDED"
	HoldStatusCaptured   HoldStatus = "CAPTURED"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
)
