package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/utils"
)

// Alias is a disposable address shielding a user's real one. Status moves
// forward only; the lifecycle service is the sole writer.
type Alias struct {
	ID     string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID string `gorm:"column:user_id;type:varchar(50);index;not null"`

	LocalPart string           `gorm:"column:local_part;type:varchar(255);not null;uniqueIndex:idx_alias_address"`
	Domain    string           `gorm:"column:domain;type:varchar(255);not null;uniqueIndex:idx_alias_address"`
	Status    enum.AliasStatus `gorm:"column:status;type:varchar(20);index;not null;default:'active'"`

	Merchant  string `gorm:"column:merchant;type:varchar(255);index"`
	ForwardTo string `gorm:"column:forward_to;type:varchar(255);not null"`

	// DecoyToken is present iff decoy seeding is enabled for this alias.
	DecoyToken *string `gorm:"column:decoy_token;type:varchar(64);uniqueIndex"`

	SpamCount       int        `gorm:"column:spam_count;not null;default:0"`
	BreachDetected  bool       `gorm:"column:breach_detected;not null;default:false"`
	LastBreachCheck *time.Time `gorm:"column:last_breach_check;type:timestamp;index"`

	// Replacement chain links. Each alias replaces at most one predecessor
	// and is replaced by at most one successor.
	ReplacesID   *string `gorm:"column:replaces_id;type:varchar(50);index"`
	ReplacedByID *string `gorm:"column:replaced_by_id;type:varchar(50)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Alias) TableName() string {
	return "aliases"
}

func (a *Alias) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("alias", 21)
	}
	if a.Status == "" {
		a.Status = enum.AliasActive
	}
	a.CreatedAt = utils.Now()
	return nil
}

func (a *Alias) Address() string {
	return fmt.Sprintf("%s@%s", a.LocalPart, a.Domain)
}

func (a *Alias) DecoyEnabled() bool {
	return a.DecoyToken != nil && *a.DecoyToken != ""
}
