package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{
		db: db,
	}
}

// Create persists an inbound message. A redelivered webhook carries the same
// message id, so an existing row short-circuits and reports duplicate=true.
func (r *emailRepository) Create(ctx context.Context, email *models.EmailMessage) (string, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email.MessageID != "" {
		existing, err := r.GetByMessageID(ctx, email.MessageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", false, err
		}
		if existing != nil {
			return existing.ID, true, nil
		}
	}

	if err := r.db.WithContext(ctx).Create(email).Error; err != nil {
		// lost the race against a concurrent redelivery
		if isUniqueViolation(err) {
			existing, lookupErr := r.GetByMessageID(ctx, email.MessageID)
			if lookupErr == nil && existing != nil {
				return existing.ID, true, nil
			}
		}
		tracing.TraceErr(span, err)
		return "", false, err
	}

	return email.ID, false, nil
}

func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.EmailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.EmailMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetByMessageID(ctx context.Context, messageID string) (*models.EmailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.EmailMessage
	err := r.db.WithContext(ctx).
		Where("message_id = ?", utils.NormalizeMessageID(messageID)).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) ListByAlias(ctx context.Context, aliasID string, limit, offset int) ([]*models.EmailMessage, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByAlias")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAlias(span, aliasID)

	var emails []*models.EmailMessage
	var total int64

	query := r.db.WithContext(ctx).Model(&models.EmailMessage{}).Where("alias_id = ?", aliasID)
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return emails, total, nil
}

func (r *emailRepository) UpdateStatus(ctx context.Context, id string, status enum.EmailStatus, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) MarkForwarded(ctx context.Context, id, forwardedTo string, forwardedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.MarkForwarded")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       enum.EmailStatusDelivered,
			"forwarded_to": forwardedTo,
			"forwarded_at": forwardedAt,
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) MarkRead(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.MarkRead")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Update("read", true).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) SetArchiveKey(ctx context.Context, id, archiveKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetArchiveKey")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Update("archive_key", archiveKey).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) SetClassification(ctx context.Context, id string, c *models.Classification) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetClassification")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"spam_score":     c.SpamScore,
			"is_spam":        c.IsSpam,
			"security_score": c.SecurityScore,
			"updated_at":     time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
