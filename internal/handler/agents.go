package handler

import (
	"net/http"
	"strconv"

	"agent-arena/internal/agent"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetLeaderboard godoc
// @Summary      Competition leaderboard
// @Description  Returns active agents ranked by portfolio value, with open positions and last trade
// @Tags         agents
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/agents [get]
func (h *Handler) GetLeaderboard(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-leaderboard")
	defer span.End()

	entries, err := h.reporting.Leaderboard(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": entries})
}

// GetPerformance godoc
// @Summary      Agent performance history
// @Description  Returns daily portfolio valuations for one agent, oldest first
// @Tags         agents
// @Produce      json
// @Param        id    path   string  true   "Agent ID"
// @Param        days  query  int     false  "Number of days (default 30, max 365)"  default(30)
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/agents/{id}/performance [get]
func (h *Handler) GetPerformance(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-performance")
	defer span.End()

	agentID := c.Param("id")
	span.SetAttributes(attribute.String("agent.id", agentID))

	days := 30
	if d := c.Query("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 {
			days = n
		}
	}

	series, err := h.reporting.PerformanceSeries(ctx, agentID, days)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":    agentID,
		"performance": series,
	})
}

// TriggerCycle godoc
// @Summary      Run a trading cycle manually
// @Description  Executes one full trading cycle for the given agent and returns the structured outcome
// @Tags         agents
// @Produce      json
// @Param        id  path  string  true  "Agent ID"
// @Success      200  {object}  domain.CycleResult
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/agents/{id}/run [post]
func (h *Handler) TriggerCycle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-cycle")
	defer span.End()

	agentID := c.Param("id")
	span.SetAttributes(attribute.String("agent.id", agentID))

	var def *agent.Definition
	for i := range h.agents {
		if h.agents[i].ID == agentID {
			def = &h.agents[i]
			break
		}
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent: " + agentID})
		return
	}

	result, err := h.runner.RunCycle(ctx, *def)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}

	c.JSON(http.StatusOK, result)
}
