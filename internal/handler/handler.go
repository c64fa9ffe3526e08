package handler

import (
	"context"

	"agent-arena/internal/agent"
	"agent-arena/internal/domain"
	"agent-arena/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type Reporting interface {
	Leaderboard(ctx context.Context) ([]service.LeaderboardEntry, error)
	RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error)
	PerformanceSeries(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error)
	Stats(ctx context.Context) (*domain.CompetitionStats, error)
}

type CycleRunner interface {
	RunCycle(ctx context.Context, def agent.Definition) (*domain.CycleResult, error)
}

type PriceGetter interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Handler struct {
	tracer    trace.Tracer
	reporting Reporting
	runner    CycleRunner
	prices    PriceGetter
	agents    []agent.Definition
}

func New(tracer trace.Tracer, reporting Reporting, runner CycleRunner, prices PriceGetter, agents []agent.Definition) *Handler {
	return &Handler{
		tracer:    tracer,
		reporting: reporting,
		runner:    runner,
		prices:    prices,
		agents:    agents,
	}
}

// RegisterRoutes wires the REST surface. Reads are open; the manual cycle
// trigger sits behind the API key.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	r.GET("/api/agents", h.GetLeaderboard)
	r.GET("/api/agents/:id/performance", h.GetPerformance)
	r.GET("/api/trades", h.GetTrades)
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/prices/:symbol", h.GetPrice)

	protected := r.Group("/api", APIKeyAuth(apiKey))
	protected.POST("/agents/:id/run", h.TriggerCycle)
}
