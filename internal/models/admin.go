// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB      `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

type Notification struct {
	BaseModel
	UserID  uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Type    string     `json:"type" gorm:"type:varchar(50);not null;index"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Data    JSONB      `json:"data" gorm:"type:jsonb"`
	ReadAt  *time.Time `json:"read_at"`
}

// CronRunLog is written once per scheduled job run.
type CronRunLog struct {
	BaseModel
	JobName        string         `json:"jobName" gorm:"size:100;not null;index"`
	Status         RunStatus      `json:"status" gorm:"type:varchar(20);not null"`
	ProcessedCount int            `json:"processedCount" gorm:"not null;default:0"`
	Errors         pq.StringArray `json:"errors" gorm:"type:text[]"`
	Metadata       JSONB          `json:"metadata" gorm:"type:jsonb"`
}
