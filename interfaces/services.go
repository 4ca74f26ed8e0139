package interfaces

import (
	"context"
	"time"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/models"
)

type LeakDetectorService interface {
	// MatchDecoy reports whether the alias decoy token occurs in the
	// message content. Unambiguous when it does.
	MatchDecoy(alias *models.Alias, event *dto.MailEvent) bool

	// Severity derives the breach severity score for a set of records.
	Severity(breaches []BreachRecord) int

	// KillEligible reports whether at least one breach is verified, not
	// fabricated and not retired.
	KillEligible(breaches []BreachRecord) bool
}

type CreateAliasInput struct {
	UserID      string
	LocalPart   string
	Merchant    string
	ForwardTo   string
	EnableDecoy bool
}

type LifecycleService interface {
	CreateAlias(ctx context.Context, input CreateAliasInput) (*models.Alias, error)
	Kill(ctx context.Context, aliasID, reason string) (*models.Alias, error)
	MarkLeaked(ctx context.Context, alias *models.Alias, source string, metadata models.JSONMap) error
	Replace(ctx context.Context, aliasID, newLocalPart string) (*models.Alias, error)

	// RecordSpam atomically increments the alias spam counter and applies
	// the auto-kill policy. Returns the new count and whether this call
	// triggered the kill.
	RecordSpam(ctx context.Context, alias *models.Alias) (int, bool, error)

	// ApplyBreachResult applies the auto-kill policy to a sweep result:
	// kill when eligible and severity >= the kill threshold, advisory
	// otherwise.
	ApplyBreachResult(ctx context.Context, alias *models.Alias, severity int, killEligible bool) error

	// DecideDelivery is the pure delivery-decision policy for one inbound
	// message. Independent of status transitions.
	DecideDelivery(alias *models.Alias, classification *models.Classification) models.DeliveryDecision
}

type ForwardOutcome struct {
	Delivered         bool
	ForwardedTo       string
	ForwardedAt       *time.Time
	ProviderMessageID string
	ErrorMessage      string
}

type ForwardingService interface {
	Forward(ctx context.Context, alias *models.Alias, email *models.EmailMessage) (*ForwardOutcome, error)
}

type AuditService interface {
	// Record never fails the calling operation. Persistence errors are
	// logged and swallowed.
	Record(ctx context.Context, userID string, action enum.AuditAction, resource, resourceID string, metadata models.JSONMap)
}

type RelayLogService interface {
	// Record persists a relay event and publishes it on the event bus.
	// Bus failures are logged, never propagated.
	Record(ctx context.Context, aliasID string, eventType enum.RelayEventType, metadata models.JSONMap) (*models.RelayEvent, error)
}

type EventPublisher interface {
	PublishRelayEvent(ctx context.Context, message dto.RelayEventMessage) error
	Close() error
}

type IngestOutcome struct {
	EmailID      string
	Duplicate    bool
	Decision     models.DeliveryDecision
	LeakDetected bool
	Forwarded    bool
}

type IngestService interface {
	// Normalize converts a provider-specific webhook payload into the
	// canonical mail-event shape. Unparseable payloads fail with
	// ErrMalformedPayload.
	Normalize(source enum.WebhookProvider, contentType string, payload []byte) (*dto.MailEvent, error)

	// Process runs one normalized event through the inbound pipeline:
	// alias lookup, dedup, archive, classification, leak check, delivery
	// decision and forwarding.
	Process(ctx context.Context, event *dto.MailEvent) (*IngestOutcome, error)
}

type SweepStats struct {
	Selected    int
	Checked     int
	Breached    int
	Killed      int
	Leaked      int
	RateLimited int
	Errors      int
}

type BreachSweepService interface {
	// Run executes one sweep over due aliases. Only one run may be active
	// at a time; a second concurrent call fails with ErrSweepInProgress.
	Run(ctx context.Context) (*SweepStats, error)
}

type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
