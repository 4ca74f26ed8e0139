package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
)

type relayEventRepository struct {
	db *gorm.DB
}

func NewRelayEventRepository(db *gorm.DB) interfaces.RelayEventRepository {
	return &relayEventRepository{
		db: db,
	}
}

// Create appends an event. There are no update or delete paths on this
// table by construction.
func (r *relayEventRepository) Create(ctx context.Context, event *models.RelayEvent) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "relayEventRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return event.ID, nil
}

func (r *relayEventRepository) ListByAlias(ctx context.Context, aliasID string, limit int) ([]*models.RelayEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "relayEventRepository.ListByAlias")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAlias(span, aliasID)

	var events []*models.RelayEvent
	err := r.db.WithContext(ctx).
		Where("alias_id = ?", aliasID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return events, nil
}

func (r *relayEventRepository) CountByAliasAndType(ctx context.Context, aliasID string, eventType enum.RelayEventType) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "relayEventRepository.CountByAliasAndType")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.RelayEvent{}).
		Where("alias_id = ? AND type = ?", aliasID, eventType).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
