package events

import (
	"context"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/logger"
)

// noopPublisher stands in when no broker URL is configured. Events are
// still persisted in the relay_events table, only the bus fan-out is
// skipped.
type noopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) interfaces.EventPublisher {
	return &noopPublisher{log: log}
}

func (p *noopPublisher) PublishRelayEvent(ctx context.Context, message dto.RelayEventMessage) error {
	p.log.Debugf("event bus disabled, dropping relay event %s for alias %s", message.Type, message.AliasID)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
