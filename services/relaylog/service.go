package relaylog

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type relayLogService struct {
	events    interfaces.RelayEventRepository
	publisher interfaces.EventPublisher
	log       logger.Logger
}

func NewRelayLogService(events interfaces.RelayEventRepository, publisher interfaces.EventPublisher, log logger.Logger) interfaces.RelayLogService {
	return &relayLogService{
		events:    events,
		publisher: publisher,
		log:       log,
	}
}

// Record appends the event to the relay ledger, then fans it out on the
// bus. The database row is the source of truth; a publish failure is
// logged and dropped.
func (s *relayLogService) Record(ctx context.Context, aliasID string, eventType enum.RelayEventType, metadata models.JSONMap) (*models.RelayEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "relayLogService.Record")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAlias(span, aliasID)
	span.LogKV("event-type", eventType.String())

	event := &models.RelayEvent{
		AliasID:  aliasID,
		Type:     eventType,
		Metadata: metadata,
	}

	if _, err := s.events.Create(ctx, event); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	message := dto.RelayEventMessage{
		EventID:   event.ID,
		AliasID:   aliasID,
		UserID:    utils.GetUserIDFromContext(ctx),
		Type:      eventType,
		Metadata:  metadata,
		CreatedAt: event.CreatedAt,
	}
	if err := s.publisher.PublishRelayEvent(ctx, message); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to publish relay event %s for alias %s: %v", eventType, aliasID, err)
	}

	return event, nil
}
