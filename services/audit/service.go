package audit

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type auditService struct {
	repository interfaces.AuditLogRepository
	log        logger.Logger
}

func NewAuditService(repository interfaces.AuditLogRepository, log logger.Logger) interfaces.AuditService {
	return &auditService{
		repository: repository,
		log:        log,
	}
}

// Record persists one audit entry. A write failure must never fail the
// operation being audited, so errors are logged and swallowed here.
func (s *auditService) Record(ctx context.Context, userID string, action enum.AuditAction, resource, resourceID string, metadata models.JSONMap) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "auditService.Record")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("action", action.String(), "resource", resource)

	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
		IP:         utils.GetIPFromContext(ctx),
		UserAgent:  utils.GetUserAgentFromContext(ctx),
	}

	if _, err := s.repository.Create(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to write audit entry %s for %s/%s: %v", action, resource, resourceID, err)
	}
}
