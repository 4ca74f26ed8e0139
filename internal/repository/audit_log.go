package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
)

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) interfaces.AuditLogRepository {
	return &auditLogRepository{
		db: db,
	}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "auditLogRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return entry.ID, nil
}

func (r *auditLogRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "auditLogRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.AuditLog{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return entries, total, nil
}
