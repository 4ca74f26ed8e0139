package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/utils"
)

// EmailMessage is one received mail event. Immutable once created except
// for status, read and the forwarding-outcome fields, which are written
// exactly once per processing pass.
type EmailMessage struct {
	ID      string `gorm:"column:id;type:varchar(50);primaryKey"`
	AliasID string `gorm:"column:alias_id;type:varchar(50);index;not null"`

	// MessageID is the provider message id. The unique index is the
	// idempotency key against webhook redelivery.
	MessageID string `gorm:"column:message_id;uniqueIndex;type:varchar(255);not null"`

	FromAddress string `gorm:"column:from_address;type:varchar(255);index"`
	FromName    string `gorm:"column:from_name;type:varchar(255)"`
	ToAddress   string `gorm:"column:to_address;type:varchar(255);index"`

	Subject      string  `gorm:"column:subject;type:varchar(1000)"`
	CleanSubject string  `gorm:"column:clean_subject;type:varchar(1000)"`
	BodyText     string  `gorm:"column:body_text;type:text"`
	BodyHTML     string  `gorm:"column:body_html;type:text"`
	RawHeaders   JSONMap `gorm:"column:raw_headers;type:jsonb"`
	Attachments  JSONMap `gorm:"column:attachments;type:jsonb"`

	// Classification outcome
	SpamScore     float64 `gorm:"column:spam_score"`
	IsSpam        bool    `gorm:"column:is_spam;index"`
	SecurityScore int     `gorm:"column:security_score"`

	Status enum.EmailStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'"`
	Read   bool             `gorm:"column:read;not null;default:false"`

	// Forwarding outcome
	ForwardedTo  string     `gorm:"column:forwarded_to;type:varchar(255)"`
	ForwardedAt  *time.Time `gorm:"column:forwarded_at;type:timestamp"`
	ErrorMessage string     `gorm:"column:error_message;type:text"`

	// Key of the raw payload copy in object storage, if archiving is on.
	ArchiveKey string `gorm:"column:archive_key;type:varchar(512)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailMessage) TableName() string {
	return "email_messages"
}

func (e *EmailMessage) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	if e.Status == "" {
		e.Status = enum.EmailStatusPending
	}
	e.CreatedAt = utils.Now()
	return nil
}
