package handler

import (
	"net/http"
	"strings"

	"agent-arena/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetPrice godoc
// @Summary      Get current price for a watch-list symbol
// @Description  Returns the latest cached quote for one tracked stock
// @Tags         prices
// @Produce      json
// @Param        symbol  path  string  true  "Stock symbol (e.g., AAPL, MSFT)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/prices/{symbol} [get]
func (h *Handler) GetPrice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	if !domain.Tracked(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported symbol: " + symbol,
			"supported_symbols": domain.Watchlist,
		})
		return
	}

	price, err := h.prices.GetPrice(ctx, symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}
