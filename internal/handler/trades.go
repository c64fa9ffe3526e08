package handler

import (
	"net/http"
	"strconv"
	"strings"

	"agent-arena/internal/domain"

	"github.com/gin-gonic/gin"
)

// GetTrades godoc
// @Summary      Recent trades
// @Description  Pages through the global trade log, newest first, optionally filtered by action
// @Tags         trades
// @Produce      json
// @Param        limit   query  int     false  "Page size (default 20, max 100)"  default(20)
// @Param        offset  query  int     false  "Page offset"  default(0)
// @Param        action  query  string  false  "Filter by action (BUY or SELL)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/trades [get]
func (h *Handler) GetTrades(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trades")
	defer span.End()

	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	action := domain.TradeAction(strings.ToUpper(strings.TrimSpace(c.Query("action"))))
	trades, err := h.reporting.RecentTrades(ctx, limit, offset, action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"limit":  limit,
		"offset": offset,
	})
}
