package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/utils"
)

// RelayEvent is an append-only log entry tied to an alias. Never updated
// or deleted.
type RelayEvent struct {
	ID       string              `gorm:"column:id;type:varchar(50);primaryKey"`
	AliasID  string              `gorm:"column:alias_id;type:varchar(50);index;not null"`
	Type     enum.RelayEventType `gorm:"column:type;type:varchar(30);index;not null"`
	Metadata JSONMap             `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp;index"`
}

func (RelayEvent) TableName() string {
	return "relay_events"
}

func (e *RelayEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("revt", 21)
	}
	e.CreatedAt = utils.Now()
	return nil
}
