package interfaces

import (
	"context"
	"time"

	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/models"
)

type AliasRepository interface {
	Create(ctx context.Context, alias *models.Alias) (string, error)
	GetByID(ctx context.Context, id string) (*models.Alias, error)
	GetByAddress(ctx context.Context, localPart, domain string) (*models.Alias, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Alias, int64, error)
	ListDueForBreachCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.Alias, error)

	// IncrementSpamCount atomically increments spam_count for an active
	// alias and returns the new value. Concurrent callers observe
	// distinct values.
	IncrementSpamCount(ctx context.Context, id string) (int, error)

	// TransitionStatus conditionally moves an alias out of the expected
	// status. Returns false without error when the alias was already
	// transitioned by a concurrent writer.
	TransitionStatus(ctx context.Context, id string, from, to enum.AliasStatus) (bool, error)

	// LinkReplacement sets replaced_by_id on the old alias iff it has no
	// replacement yet. Returns false when a replacement already exists.
	LinkReplacement(ctx context.Context, oldID, newID string) (bool, error)

	MarkBreachChecked(ctx context.Context, id string, checkedAt time.Time, breachDetected bool) error
}

type EmailRepository interface {
	// Create persists a message, deduplicating on message id. The second
	// return value reports whether an existing record was found instead.
	Create(ctx context.Context, email *models.EmailMessage) (string, bool, error)
	GetByID(ctx context.Context, id string) (*models.EmailMessage, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.EmailMessage, error)
	ListByAlias(ctx context.Context, aliasID string, limit, offset int) ([]*models.EmailMessage, int64, error)
	UpdateStatus(ctx context.Context, id string, status enum.EmailStatus, errorMessage string) error
	MarkForwarded(ctx context.Context, id string, forwardedTo string, forwardedAt time.Time) error
	MarkRead(ctx context.Context, id string) error
	SetArchiveKey(ctx context.Context, id string, archiveKey string) error
	SetClassification(ctx context.Context, id string, c *models.Classification) error
}

type RelayEventRepository interface {
	Create(ctx context.Context, event *models.RelayEvent) (string, error)
	ListByAlias(ctx context.Context, aliasID string, limit int) ([]*models.RelayEvent, error)
	CountByAliasAndType(ctx context.Context, aliasID string, eventType enum.RelayEventType) (int64, error)
}

type BreachCheckRepository interface {
	Create(ctx context.Context, check *models.BreachCheck) (string, error)
	ListByAlias(ctx context.Context, aliasID string) ([]*models.BreachCheck, error)
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) (string, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, int64, error)
}
