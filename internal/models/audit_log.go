package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/utils"
)

// AuditLog is the append-only, user-scoped audit trail. Every lifecycle
// transition and auto-kill decision produces exactly one entry.
type AuditLog struct {
	ID     string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID string `gorm:"column:user_id;type:varchar(50);index"`

	Action     enum.AuditAction `gorm:"column:action;type:varchar(50);index;not null"`
	Resource   string           `gorm:"column:resource;type:varchar(50);not null"`
	ResourceID string           `gorm:"column:resource_id;type:varchar(50);index"`
	Metadata   JSONMap          `gorm:"column:metadata;type:jsonb"`

	// Request provenance, when the action originated from an API call.
	IP        string `gorm:"column:ip;type:varchar(45)"`
	UserAgent string `gorm:"column:user_agent;type:varchar(512)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("audit", 21)
	}
	a.CreatedAt = utils.Now()
	return nil
}
