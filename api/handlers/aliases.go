package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type AliasesHandler struct {
	lifecycle   interfaces.LifecycleService
	aliases     interfaces.AliasRepository
	emails      interfaces.EmailRepository
	relayEvents interfaces.RelayEventRepository
}

func NewAliasesHandler(
	lifecycle interfaces.LifecycleService,
	aliases interfaces.AliasRepository,
	emails interfaces.EmailRepository,
	relayEvents interfaces.RelayEventRepository,
) *AliasesHandler {
	return &AliasesHandler{
		lifecycle:   lifecycle,
		aliases:     aliases,
		emails:      emails,
		relayEvents: relayEvents,
	}
}

type createAliasRequest struct {
	LocalPart   string `json:"localPart"`
	Merchant    string `json:"merchant"`
	ForwardTo   string `json:"forwardTo" binding:"required"`
	EnableDecoy bool   `json:"enableDecoy"`
}

func (h *AliasesHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req createAliasRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := utils.GetUserIDFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id header is required"})
			return
		}

		alias, err := h.lifecycle.CreateAlias(ctx, interfaces.CreateAliasInput{
			UserID:      userID,
			LocalPart:   req.LocalPart,
			Merchant:    req.Merchant,
			ForwardTo:   req.ForwardTo,
			EnableDecoy: req.EnableDecoy,
		})
		if err != nil {
			if errors.Is(err, relayerrors.ErrAliasExists) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alias"})
			return
		}

		c.JSON(http.StatusCreated, alias)
	}
}

func (h *AliasesHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIDFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id header is required"})
			return
		}

		limit, offset := pagination(c)
		aliases, total, err := h.aliases.ListByUser(ctx, userID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list aliases"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"aliases":    aliases,
			"totalCount": total,
		})
	}
}

func (h *AliasesHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		alias, err := h.aliases.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alias"})
			return
		}
		if alias == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
			return
		}

		c.JSON(http.StatusOK, alias)
	}
}

type killAliasRequest struct {
	Reason string `json:"reason"`
}

func (h *AliasesHandler) Kill() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.Kill")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req killAliasRequest
		_ = c.ShouldBindJSON(&req)

		alias, err := h.lifecycle.Kill(ctx, c.Param("id"), req.Reason)
		if err != nil {
			switch {
			case errors.Is(err, relayerrors.ErrAliasNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
			case errors.Is(err, relayerrors.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				tracing.TraceErr(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to kill alias"})
			}
			return
		}

		c.JSON(http.StatusOK, alias)
	}
}

type replaceAliasRequest struct {
	LocalPart string `json:"localPart"`
}

func (h *AliasesHandler) Replace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.Replace")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req replaceAliasRequest
		_ = c.ShouldBindJSON(&req)

		replacement, err := h.lifecycle.Replace(ctx, c.Param("id"), req.LocalPart)
		if err != nil {
			switch {
			case errors.Is(err, relayerrors.ErrAliasNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
			case errors.Is(err, relayerrors.ErrReplaceNotEligible),
				errors.Is(err, relayerrors.ErrAliasAlreadyReplaced):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				tracing.TraceErr(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replace alias"})
			}
			return
		}

		c.JSON(http.StatusCreated, replacement)
	}
}

func (h *AliasesHandler) ListEmails() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.ListEmails")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		alias, err := h.aliases.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alias"})
			return
		}
		if alias == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
			return
		}

		limit, offset := pagination(c)
		emails, total, err := h.emails.ListByAlias(ctx, alias.ID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list emails"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"emails":     emails,
			"totalCount": total,
		})
	}
}

// ListEvents returns the relay ledger for an alias, newest first, along
// with per-type totals over the alias full history.
func (h *AliasesHandler) ListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.ListEvents")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		alias, err := h.aliases.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alias"})
			return
		}
		if alias == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
			return
		}

		limit, _ := pagination(c)
		events, err := h.relayEvents.ListByAlias(ctx, alias.ID, limit)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list relay events"})
			return
		}

		counts := gin.H{}
		for _, eventType := range []enum.RelayEventType{
			enum.RelayEventReceived,
			enum.RelayEventForwarded,
			enum.RelayEventBlocked,
			enum.RelayEventSpamDetected,
			enum.RelayEventLeakDetected,
		} {
			count, err := h.relayEvents.CountByAliasAndType(ctx, alias.ID, eventType)
			if err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count relay events"})
				return
			}
			counts[eventType.String()] = count
		}

		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"counts": counts,
		})
	}
}

// MarkEmailRead flags one message of the alias as read.
func (h *AliasesHandler) MarkEmailRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AliasesHandler.MarkEmailRead")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		email, err := h.emails.GetByID(ctx, c.Param("emailId"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load email"})
			return
		}
		if email == nil || email.AliasID != c.Param("id") {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		if err := h.emails.MarkRead(ctx, email.ID); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark email read"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"emailId": email.ID, "read": true})
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
