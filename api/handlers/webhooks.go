package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/tracing"
)

type WebhooksHandler struct {
	ingest interfaces.IngestService
}

func NewWebhooksHandler(ingest interfaces.IngestService) *WebhooksHandler {
	return &WebhooksHandler{ingest: ingest}
}

// Inbound accepts a provider webhook, normalizes and runs the message
// through the inbound pipeline. Unknown recipients answer 200 so the
// provider does not retry a message we will never accept.
func (h *WebhooksHandler) Inbound() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "WebhooksHandler.Inbound")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		provider := enum.WebhookProvider(c.Param("provider"))
		span.LogKV("provider", provider.String())

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		event, err := h.ingest.Normalize(provider, c.ContentType(), payload)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{
				"accepted": false,
				"reason":   "malformed_payload",
				"detail":   err.Error(),
			})
			return
		}

		outcome, err := h.ingest.Process(ctx, event)
		if err != nil {
			if errors.Is(err, relayerrors.ErrAliasNotFound) {
				c.JSON(http.StatusOK, gin.H{
					"accepted": false,
					"reason":   "unknown_recipient",
				})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accepted":     true,
			"emailId":      outcome.EmailID,
			"duplicate":    outcome.Duplicate,
			"decision":     outcome.Decision,
			"forwarded":    outcome.Forwarded,
			"leakDetected": outcome.LeakDetected,
		})
	}
}
