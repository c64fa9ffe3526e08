package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats godoc
// @Summary      Competition statistics
// @Description  Returns aggregate stats across all active agents
// @Tags         stats
// @Produce      json
// @Success      200  {object}  domain.CompetitionStats
// @Failure      500  {object}  map[string]string
// @Router       /api/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-stats")
	defer span.End()

	stats, err := h.reporting.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
