package forwarder

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/time/rate"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type forwardingService struct {
	provider interfaces.SendProvider
	emails   interfaces.EmailRepository
	limiter  *rate.Limiter
	log      logger.Logger
}

func NewForwardingService(
	provider interfaces.SendProvider,
	emails interfaces.EmailRepository,
	sendRatePerSecond float64,
	log logger.Logger,
) interfaces.ForwardingService {
	if sendRatePerSecond <= 0 {
		sendRatePerSecond = 5
	}
	return &forwardingService{
		provider: provider,
		emails:   emails,
		limiter:  rate.NewLimiter(rate.Limit(sendRatePerSecond), 1),
		log:      log,
	}
}

// Forward sanitizes the message, prepends the disclosure banner and
// dispatches through the configured provider. The outcome is recorded on
// the email row either way; dispatch failures are not retried here.
func (s *forwardingService) Forward(ctx context.Context, alias *models.Alias, email *models.EmailMessage) (*interfaces.ForwardOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "forwardingService.Forward")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, alias.ID)
	tracing.TagEntity(span, email.ID)

	bodyHTML := SanitizeHTML(email.BodyHTML)
	bodyText, bodyHTML := PrependBanner(alias.Address(), email.BodyText, bodyHTML)

	outbound := &interfaces.OutboundMessage{
		From:     alias.Address(),
		To:       alias.ForwardTo,
		ReplyTo:  email.FromAddress,
		Subject:  email.Subject,
		BodyText: bodyText,
		BodyHTML: bodyHTML,
		Headers: map[string]string{
			"X-VeilMail-Alias":         alias.Address(),
			"X-VeilMail-Original-From": email.FromAddress,
		},
	}

	// provider rate limits apply across concurrent forwards
	if err := s.limiter.Wait(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result, err := s.provider.Send(ctx, outbound)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("forward of email %s via %s failed: %v", email.ID, s.provider.Name(), err)

		outcome := &interfaces.ForwardOutcome{
			Delivered:    false,
			ErrorMessage: fmt.Sprintf("%s: %v", s.provider.Name(), err),
		}
		if dbErr := s.emails.UpdateStatus(ctx, email.ID, enum.EmailStatusFailed, outcome.ErrorMessage); dbErr != nil {
			tracing.TraceErr(span, dbErr)
		}
		return outcome, nil
	}

	forwardedAt := utils.Now()
	outcome := &interfaces.ForwardOutcome{
		Delivered:         true,
		ForwardedTo:       alias.ForwardTo,
		ForwardedAt:       &forwardedAt,
		ProviderMessageID: result.ProviderMessageID,
	}

	if err := s.emails.MarkForwarded(ctx, email.ID, alias.ForwardTo, forwardedAt); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("provider-message-id", result.ProviderMessageID)
	return outcome, nil
}
