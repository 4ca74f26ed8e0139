package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/veilmail/relay/internal/utils"
)

// BreachCheck records one external breach-database hit for an alias
// address. Append-only, created by the breach sweep.
type BreachCheck struct {
	ID      string `gorm:"column:id;type:varchar(50);primaryKey"`
	AliasID string `gorm:"column:alias_id;type:varchar(50);index;not null"`
	Email   string `gorm:"column:email;type:varchar(255);index;not null"`

	BreachName  string         `gorm:"column:breach_name;type:varchar(255);not null"`
	BreachDate  string         `gorm:"column:breach_date;type:varchar(20)"`
	DataClasses pq.StringArray `gorm:"column:data_classes;type:text[]"`

	IsVerified   bool `gorm:"column:is_verified;not null;default:false"`
	IsFabricated bool `gorm:"column:is_fabricated;not null;default:false"`
	IsRetired    bool `gorm:"column:is_retired;not null;default:false"`
	IsSpamList   bool `gorm:"column:is_spam_list;not null;default:false"`
	IsSensitive  bool `gorm:"column:is_sensitive;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (BreachCheck) TableName() string {
	return "breach_checks"
}

func (b *BreachCheck) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = utils.GenerateNanoIDWithPrefix("brch", 21)
	}
	b.CreatedAt = utils.Now()
	return nil
}
