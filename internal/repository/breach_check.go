package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
)

type breachCheckRepository struct {
	db *gorm.DB
}

func NewBreachCheckRepository(db *gorm.DB) interfaces.BreachCheckRepository {
	return &breachCheckRepository{
		db: db,
	}
}

func (r *breachCheckRepository) Create(ctx context.Context, check *models.BreachCheck) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "breachCheckRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(check).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return check.ID, nil
}

func (r *breachCheckRepository) ListByAlias(ctx context.Context, aliasID string) ([]*models.BreachCheck, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "breachCheckRepository.ListByAlias")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAlias(span, aliasID)

	var checks []*models.BreachCheck
	err := r.db.WithContext(ctx).
		Where("alias_id = ?", aliasID).
		Order("created_at DESC").
		Find(&checks).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return checks, nil
}
