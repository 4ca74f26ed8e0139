package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
)

type aliasRepository struct {
	db *gorm.DB
}

func NewAliasRepository(db *gorm.DB) interfaces.AliasRepository {
	return &aliasRepository{
		db: db,
	}
}

func (r *aliasRepository) Create(ctx context.Context, alias *models.Alias) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if alias == nil {
		return "", nil
	}

	alias.LocalPart = strings.ToLower(strings.TrimSpace(alias.LocalPart))
	alias.Domain = strings.ToLower(strings.TrimSpace(alias.Domain))

	result := r.db.WithContext(ctx).Create(alias)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return "", relayerrors.ErrAliasExists
		}
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return alias.ID, nil
}

func (r *aliasRepository) GetByID(ctx context.Context, id string) (*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var alias models.Alias
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alias).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &alias, nil
}

func (r *aliasRepository) GetByAddress(ctx context.Context, localPart, domain string) (*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.GetByAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var alias models.Alias
	err := r.db.WithContext(ctx).
		Where("local_part = ? AND domain = ?", strings.ToLower(localPart), strings.ToLower(domain)).
		First(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &alias, nil
}

func (r *aliasRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Alias, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var aliases []*models.Alias
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Alias{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&aliases).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return aliases, total, nil
}

func (r *aliasRepository) ListDueForBreachCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.Alias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.ListDueForBreachCheck")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var aliases []*models.Alias
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.AliasActive).
		Where("last_breach_check IS NULL OR last_breach_check < ?", checkedBefore).
		Order("last_breach_check ASC NULLS FIRST").
		Limit(limit).
		Find(&aliases).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return aliases, nil
}

// IncrementSpamCount is a single conditional UPDATE so that two messages
// arriving at once observe distinct counter values.
func (r *aliasRepository) IncrementSpamCount(ctx context.Context, id string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.IncrementSpamCount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var newCount int
	err := r.db.WithContext(ctx).Raw(
		`UPDATE aliases
		 SET spam_count = spam_count + 1, updated_at = now()
		 WHERE id = ?
		 RETURNING spam_count`, id).
		Scan(&newCount).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return newCount, nil
}

func (r *aliasRepository) TransitionStatus(ctx context.Context, id string, from, to enum.AliasStatus) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.TransitionStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("from", from.String(), "to", to.String())

	if from != enum.AliasActive {
		// no path back out of a terminal status
		return false, relayerrors.ErrInvalidTransition
	}

	result := r.db.WithContext(ctx).Model(&models.Alias{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *aliasRepository) LinkReplacement(ctx context.Context, oldID, newID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.LinkReplacement")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).Model(&models.Alias{}).
		Where("id = ? AND replaced_by_id IS NULL", oldID).
		Updates(map[string]interface{}{"replaced_by_id": newID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *aliasRepository) MarkBreachChecked(ctx context.Context, id string, checkedAt time.Time, breachDetected bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aliasRepository.MarkBreachChecked")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	updates := map[string]interface{}{
		"last_breach_check": checkedAt,
		"updated_at":        time.Now().UTC(),
	}
	if breachDetected {
		updates["breach_detected"] = true
	}

	err := r.db.WithContext(ctx).Model(&models.Alias{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "duplicate key value"))
}
