package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
	"github.com/veilmail/relay/services/classifier"
	"github.com/veilmail/relay/services/leakdetect"
)

// SpamKillThreshold is the spam count at which an active alias is killed
// automatically.
const SpamKillThreshold = 10

type lifecycleService struct {
	aliases     interfaces.AliasRepository
	audit       interfaces.AuditService
	relayLog    interfaces.RelayLogService
	aliasDomain string
	log         logger.Logger
}

func NewLifecycleService(
	aliases interfaces.AliasRepository,
	audit interfaces.AuditService,
	relayLog interfaces.RelayLogService,
	aliasDomain string,
	log logger.Logger,
) interfaces.LifecycleService {
	return &lifecycleService{
		aliases:     aliases,
		audit:       audit,
		relayLog:    relayLog,
		aliasDomain: aliasDomain,
		log:         log,
	}
}

func (s *lifecycleService) CreateAlias(ctx context.Context, input interfaces.CreateAliasInput) (*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.CreateAlias")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if input.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if input.ForwardTo == "" {
		return nil, errors.New("forward-to address is required")
	}

	localPart := strings.ToLower(strings.TrimSpace(input.LocalPart))
	if localPart == "" {
		localPart = generateLocalPart(input.Merchant)
	}

	alias := &models.Alias{
		UserID:    input.UserID,
		LocalPart: localPart,
		Domain:    s.aliasDomain,
		Status:    enum.AliasActive,
		Merchant:  input.Merchant,
		ForwardTo: input.ForwardTo,
	}
	if input.EnableDecoy {
		token := utils.GenerateDecoyToken()
		alias.DecoyToken = &token
	}

	if _, err := s.aliases.Create(ctx, alias); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.audit.Record(ctx, input.UserID, enum.AuditAliasCreated, "alias", alias.ID, models.JSONMap{
		"address":  alias.Address(),
		"merchant": alias.Merchant,
		"decoy":    alias.DecoyEnabled(),
	})

	tracing.TagAlias(span, alias.ID)
	return alias, nil
}

// Kill transitions an active alias to killed on user request. Killing an
// already terminal alias is a no-op that reports the current state.
func (s *lifecycleService) Kill(ctx context.Context, aliasID, reason string) (*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.Kill")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, aliasID)

	alias, err := s.aliases.GetByID(ctx, aliasID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if alias == nil {
		return nil, relayerrors.ErrAliasNotFound
	}

	if alias.Status.IsTerminal() {
		return alias, nil
	}

	transitioned, err := s.aliases.TransitionStatus(ctx, aliasID, enum.AliasActive, enum.AliasKilled)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !transitioned {
		// lost the race against another transition, re-read and report
		return s.aliases.GetByID(ctx, aliasID)
	}
	alias.Status = enum.AliasKilled

	s.audit.Record(ctx, alias.UserID, enum.AuditAliasKilled, "alias", alias.ID, models.JSONMap{
		"reason": reason,
	})
	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventBlocked, models.JSONMap{
		"transition": "active->killed",
		"reason":     reason,
	}); err != nil {
		tracing.TraceErr(span, err)
	}

	return alias, nil
}

// MarkLeaked transitions an active alias to leaked. Idempotent against a
// concurrent transition: only the winning writer records the event.
func (s *lifecycleService) MarkLeaked(ctx context.Context, alias *models.Alias, source string, metadata models.JSONMap) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.MarkLeaked")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, alias.ID)
	span.LogKV("source", source)

	transitioned, err := s.aliases.TransitionStatus(ctx, alias.ID, enum.AliasActive, enum.AliasLeaked)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !transitioned {
		s.log.Infof("alias %s already transitioned, skipping leak record", alias.ID)
		return nil
	}
	alias.Status = enum.AliasLeaked

	if metadata == nil {
		metadata = models.JSONMap{}
	}
	metadata["source"] = source

	s.audit.Record(ctx, alias.UserID, enum.AuditAliasLeaked, "alias", alias.ID, metadata)
	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventLeakDetected, metadata); err != nil {
		tracing.TraceErr(span, err)
	}

	return nil
}

// Replace creates a successor alias for a compromised predecessor. The old
// alias keeps its terminal status; replacement is additive. A still-active,
// non-breach-flagged alias cannot be replaced.
func (s *lifecycleService) Replace(ctx context.Context, aliasID, newLocalPart string) (*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.Replace")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, aliasID)

	old, err := s.aliases.GetByID(ctx, aliasID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if old == nil {
		return nil, relayerrors.ErrAliasNotFound
	}

	if old.Status == enum.AliasActive && !old.BreachDetected {
		return nil, relayerrors.ErrReplaceNotEligible
	}
	if old.ReplacedByID != nil {
		return nil, relayerrors.ErrAliasAlreadyReplaced
	}

	localPart := strings.ToLower(strings.TrimSpace(newLocalPart))
	if localPart == "" {
		localPart = generateLocalPart(old.Merchant)
	}

	replacement := &models.Alias{
		UserID:     old.UserID,
		LocalPart:  localPart,
		Domain:     old.Domain,
		Status:     enum.AliasActive,
		Merchant:   old.Merchant,
		ForwardTo:  old.ForwardTo,
		ReplacesID: &old.ID,
	}
	if old.DecoyEnabled() {
		token := utils.GenerateDecoyToken()
		replacement.DecoyToken = &token
	}

	if _, err := s.aliases.Create(ctx, replacement); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	linked, err := s.aliases.LinkReplacement(ctx, old.ID, replacement.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !linked {
		// a concurrent replace won; the successor we just created is orphaned
		err := relayerrors.ErrAliasAlreadyReplaced
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.audit.Record(ctx, old.UserID, enum.AuditAliasReplaced, "alias", old.ID, models.JSONMap{
		"replacedBy": replacement.ID,
		"newAddress": replacement.Address(),
	})

	return replacement, nil
}

// RecordSpam increments the alias spam counter atomically and fires the
// auto-kill exactly once, on the increment that reaches the threshold.
func (s *lifecycleService) RecordSpam(ctx context.Context, alias *models.Alias) (int, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.RecordSpam")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, alias.ID)

	newCount, err := s.aliases.IncrementSpamCount(ctx, alias.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, false, err
	}
	alias.SpamCount = newCount
	span.LogKV("spam-count", newCount)

	if newCount != SpamKillThreshold {
		return newCount, false, nil
	}

	transitioned, err := s.aliases.TransitionStatus(ctx, alias.ID, enum.AliasActive, enum.AliasKilled)
	if err != nil {
		tracing.TraceErr(span, err)
		return newCount, false, err
	}
	if !transitioned {
		return newCount, false, nil
	}
	alias.Status = enum.AliasKilled

	s.audit.Record(ctx, alias.UserID, enum.AuditAliasAutoKilled, "alias", alias.ID, models.JSONMap{
		"spamCount": newCount,
		"trigger":   "spam_threshold",
	})
	if _, err := s.relayLog.Record(ctx, alias.ID, enum.RelayEventSpamDetected, models.JSONMap{
		"transition": "active->killed",
		"spamCount":  newCount,
	}); err != nil {
		tracing.TraceErr(span, err)
	}

	return newCount, true, nil
}

// ApplyBreachResult applies the auto-kill policy to one sweep result.
// Severity at or above the threshold with an eligible breach kills the
// alias; anything else becomes a user-facing advisory.
func (s *lifecycleService) ApplyBreachResult(ctx context.Context, alias *models.Alias, severity int, killEligible bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lifecycleService.ApplyBreachResult")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, alias.ID)
	span.LogKV("severity", severity, "kill-eligible", killEligible)

	if killEligible && severity >= leakdetect.KillSeverityThreshold {
		return s.MarkLeaked(ctx, alias, "breach_sweep", models.JSONMap{
			"severity": severity,
		})
	}

	s.audit.Record(ctx, alias.UserID, enum.AuditBreachAdvisory, "alias", alias.ID, models.JSONMap{
		"severity":     severity,
		"killEligible": killEligible,
	})
	return nil
}

// DecideDelivery is the pure delivery policy. It never touches state.
func (s *lifecycleService) DecideDelivery(alias *models.Alias, classification *models.Classification) models.DeliveryDecision {
	if alias.Status != enum.AliasActive {
		return models.DeliveryBlocked
	}
	switch {
	case classifier.BlockEligible(classification.SpamScore):
		return models.DeliveryBlocked
	case classifier.QuarantineEligible(classification.SpamScore):
		return models.DeliveryQuarantine
	case classification.IsSpam:
		return models.DeliverySpam
	default:
		return models.DeliveryForward
	}
}

func generateLocalPart(merchant string) string {
	slug := strings.ToLower(strings.TrimSpace(merchant))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, slug)
	slug = strings.Trim(slug, "-")
	suffix := strings.TrimPrefix(utils.GenerateNanoIDWithPrefix("x", 6), "x_")
	if slug == "" {
		return suffix
	}
	return fmt.Sprintf("%s-%s", slug, suffix)
}
