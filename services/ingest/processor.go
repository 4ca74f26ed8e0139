package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
	"github.com/veilmail/relay/services/storage"
)

type ingestService struct {
	aliases      interfaces.AliasRepository
	emails       interfaces.EmailRepository
	classifier   interfaces.ClassifierService
	leakDetector interfaces.LeakDetectorService
	lifecycle    interfaces.LifecycleService
	forwarder    interfaces.ForwardingService
	relayLog     interfaces.RelayLogService
	audit        interfaces.AuditService
	archive      interfaces.StorageService
	log          logger.Logger
}

func NewIngestService(
	aliases interfaces.AliasRepository,
	emails interfaces.EmailRepository,
	classifier interfaces.ClassifierService,
	leakDetector interfaces.LeakDetectorService,
	lifecycle interfaces.LifecycleService,
	forwarder interfaces.ForwardingService,
	relayLog interfaces.RelayLogService,
	audit interfaces.AuditService,
	archive interfaces.StorageService,
	log logger.Logger,
) interfaces.IngestService {
	return &ingestService{
		aliases:      aliases,
		emails:       emails,
		classifier:   classifier,
		leakDetector: leakDetector,
		lifecycle:    lifecycle,
		forwarder:    forwarder,
		relayLog:     relayLog,
		audit:        audit,
		archive:      archive,
		log:          log,
	}
}

// Process runs one normalized mail event through the inbound pipeline.
// Redelivered message ids short-circuit after the dedup check; everything
// after persistence is best-effort per stage so a single collaborator
// failure never loses the message record.
func (s *ingestService) Process(ctx context.Context, event *dto.MailEvent) (*interfaces.IngestOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestService.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("message-id", event.MessageID, "to", event.To)

	alias, err := s.lookupAlias(ctx, event.To)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagAlias(span, alias.ID)

	email := buildEmailMessage(alias, event)
	emailID, duplicate, err := s.emails.Create(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if duplicate {
		span.LogKV("duplicate", true)
		s.log.Infof("duplicate message %s for alias %s, skipping", event.MessageID, alias.ID)
		return &interfaces.IngestOutcome{EmailID: emailID, Duplicate: true}, nil
	}
	email.ID = emailID

	s.archiveRawEvent(ctx, alias.ID, emailID, event)

	classification := s.classifier.Classify(ctx, event)
	if err := s.emails.SetClassification(ctx, emailID, classification); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to store classification for email %s: %v", emailID, err)
	}

	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventReceived, models.JSONMap{
		"emailId":   emailID,
		"messageId": event.MessageID,
		"from":      event.From,
	}); err != nil {
		tracing.TraceErr(span, err)
	}

	s.audit.Record(ctx, alias.UserID, enum.AuditEmailClassified, "email", emailID, models.JSONMap{
		"spamScore":     classification.SpamScore,
		"isSpam":        classification.IsSpam,
		"securityScore": classification.SecurityScore,
		"isSecure":      classification.IsSecure,
	})

	// A decoy hit is unambiguous. The alias is burned regardless of how
	// the message scored, and nothing is forwarded.
	if alias.DecoyEnabled() && s.leakDetector.MatchDecoy(alias, event) {
		if err := s.lifecycle.MarkLeaked(ctx, alias, "decoy_token", models.JSONMap{
			"emailId":   emailID,
			"messageId": event.MessageID,
		}); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if err := s.emails.UpdateStatus(ctx, emailID, enum.EmailStatusQuarantined, ""); err != nil {
			tracing.TraceErr(span, err)
		}
		return &interfaces.IngestOutcome{
			EmailID:      emailID,
			Decision:     models.DeliveryBlocked,
			LeakDetected: true,
		}, nil
	}

	decision := s.lifecycle.DecideDelivery(alias, classification)
	span.LogKV("decision", string(decision))

	outcome := &interfaces.IngestOutcome{EmailID: emailID, Decision: decision}

	switch decision {
	case models.DeliveryBlocked:
		s.handleBlocked(ctx, alias, emailID, classification)
	case models.DeliverySpam:
		s.handleSpam(ctx, alias, emailID, classification)
	case models.DeliveryQuarantine:
		if err := s.emails.UpdateStatus(ctx, emailID, enum.EmailStatusQuarantined, ""); err != nil {
			tracing.TraceErr(span, err)
		}
		s.countSpamStrike(ctx, alias, classification)
	case models.DeliveryForward:
		forwarded, err := s.forwarder.Forward(ctx, alias, email)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		outcome.Forwarded = forwarded.Delivered
		if forwarded.Delivered {
			if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventForwarded, models.JSONMap{
				"emailId":           emailID,
				"forwardedTo":       forwarded.ForwardedTo,
				"providerMessageId": forwarded.ProviderMessageID,
			}); err != nil {
				tracing.TraceErr(span, err)
			}
		}
	}

	return outcome, nil
}

func (s *ingestService) lookupAlias(ctx context.Context, recipient string) (*models.Alias, error) {
	parts := strings.SplitN(recipient, "@", 2)
	if len(parts) != 2 {
		return nil, errors.Wrapf(relayerrors.ErrMalformedPayload, "invalid recipient %q", recipient)
	}
	alias, err := s.aliases.GetByAddress(ctx, parts[0], parts[1])
	if err != nil {
		return nil, err
	}
	if alias == nil {
		s.log.Warnf("rejected message for unknown recipient %s", recipient)
		return nil, relayerrors.ErrAliasNotFound
	}
	return alias, nil
}

// handleBlocked records the rejection. Messages blocked by the spam
// ceiling keep the spam status; messages blocked by a dead alias are held
// as quarantined instead.
func (s *ingestService) handleBlocked(ctx context.Context, alias *models.Alias, emailID string, classification *models.Classification) {
	status := enum.EmailStatusQuarantined
	reason := "alias_not_active"
	if alias.Status == enum.AliasActive {
		status = enum.EmailStatusSpam
		reason = "spam_score_ceiling"
	}

	if err := s.emails.UpdateStatus(ctx, emailID, status, ""); err != nil {
		s.log.Errorf("failed to update status for blocked email %s: %v", emailID, err)
	}
	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventBlocked, models.JSONMap{
		"emailId":   emailID,
		"reason":    reason,
		"spamScore": classification.SpamScore,
	}); err != nil {
		s.log.Errorf("failed to record blocked event for email %s: %v", emailID, err)
	}
	s.audit.Record(ctx, alias.UserID, enum.AuditEmailRejected, "email", emailID, models.JSONMap{
		"reason":      reason,
		"aliasStatus": alias.Status.String(),
	})

	s.countSpamStrike(ctx, alias, classification)
}

func (s *ingestService) handleSpam(ctx context.Context, alias *models.Alias, emailID string, classification *models.Classification) {
	if err := s.emails.UpdateStatus(ctx, emailID, enum.EmailStatusSpam, ""); err != nil {
		s.log.Errorf("failed to update status for spam email %s: %v", emailID, err)
	}
	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventSpamDetected, models.JSONMap{
		"emailId":   emailID,
		"spamScore": classification.SpamScore,
	}); err != nil {
		s.log.Errorf("failed to record spam event for email %s: %v", emailID, err)
	}

	s.countSpamStrike(ctx, alias, classification)
}

// countSpamStrike advances the per-alias spam counter that drives the
// auto-kill. Every spam-classified message on an active alias counts,
// whichever delivery tier it lands in.
func (s *ingestService) countSpamStrike(ctx context.Context, alias *models.Alias, classification *models.Classification) {
	if !classification.IsSpam || alias.Status != enum.AliasActive {
		return
	}
	newCount, killed, err := s.lifecycle.RecordSpam(ctx, alias)
	if err != nil {
		s.log.Errorf("failed to record spam against alias %s: %v", alias.ID, err)
		return
	}
	if killed {
		s.log.Warnf("alias %s auto-killed after %d spam messages", alias.ID, newCount)
	}
}

// archiveRawEvent copies the normalized payload to object storage. Loss of
// the archive copy is tolerable; loss of the message record is not.
func (s *ingestService) archiveRawEvent(ctx context.Context, aliasID, emailID string, event *dto.MailEvent) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Errorf("failed to marshal event for archive: %v", err)
		return
	}
	key := storage.ArchiveKey(aliasID, emailID)
	if err := s.archive.Upload(ctx, key, data, "application/json"); err != nil {
		s.log.Errorf("failed to archive email %s: %v", emailID, err)
		return
	}
	if err := s.emails.SetArchiveKey(ctx, emailID, key); err != nil {
		s.log.Errorf("failed to store archive key for email %s: %v", emailID, err)
	}
}

func buildEmailMessage(alias *models.Alias, event *dto.MailEvent) *models.EmailMessage {
	email := &models.EmailMessage{
		AliasID:      alias.ID,
		MessageID:    event.MessageID,
		FromAddress:  event.From,
		FromName:     event.FromName,
		ToAddress:    event.To,
		Subject:      event.Subject,
		CleanSubject: utils.NormalizeSubject(event.Subject),
		BodyText:     event.BodyText,
		BodyHTML:     event.BodyHTML,
	}
	if len(event.Headers) > 0 {
		headers := make(models.JSONMap, len(event.Headers))
		for k, v := range event.Headers {
			headers[k] = v
		}
		email.RawHeaders = headers
	}
	if len(event.Attachments) > 0 {
		metas := make([]interface{}, 0, len(event.Attachments))
		for _, a := range event.Attachments {
			metas = append(metas, map[string]interface{}{
				"name":         a.Name,
				"content_type": a.ContentType,
				"size":         a.Size,
			})
		}
		email.Attachments = models.JSONMap{"items": metas}
	}
	return email
}
