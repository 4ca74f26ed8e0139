package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/interfaces"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/tracing"
)

type SweepHandler struct {
	sweep interfaces.BreachSweepService
}

func NewSweepHandler(sweep interfaces.BreachSweepService) *SweepHandler {
	return &SweepHandler{sweep: sweep}
}

// Trigger runs one breach sweep synchronously and returns its counters.
// The scheduler uses the same entry point, so a manual trigger while a
// scheduled run is active answers 409.
func (h *SweepHandler) Trigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SweepHandler.Trigger")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		stats, err := h.sweep.Run(ctx)
		if err != nil {
			if errors.Is(err, relayerrors.ErrSweepInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}
