package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type AgentReader interface {
	ListActive(ctx context.Context) ([]*domain.Agent, error)
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
}

type TradeReader interface {
	ListRecent(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.ExecutedTrade, error)
}

type PositionReader interface {
	ListByAgent(ctx context.Context, agentID string) (map[string]domain.Position, error)
}

type SnapshotReader interface {
	SeriesByAgent(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error)
}

// LeaderboardEntry is one row of the competition standing: the agent, its
// open positions, and its most recent trade.
type LeaderboardEntry struct {
	Rank      int                   `json:"rank"`
	Agent     domain.Agent          `json:"agent"`
	Positions []domain.Position     `json:"positions"`
	LastTrade *domain.ExecutedTrade `json:"last_trade,omitempty"`
}

// ReportingService derives the read-only competition views from the stores.
// It never writes.
type ReportingService struct {
	tracer    trace.Tracer
	agents    AgentReader
	trades    TradeReader
	positions PositionReader
	snapshots SnapshotReader
}

func NewReportingService(
	tracer trace.Tracer,
	agents AgentReader,
	trades TradeReader,
	positions PositionReader,
	snapshots SnapshotReader,
) *ReportingService {
	return &ReportingService{
		tracer:    tracer,
		agents:    agents,
		trades:    trades,
		positions: positions,
		snapshots: snapshots,
	}
}

// Leaderboard returns all active agents ranked by portfolio value, each with
// open positions and the latest trade. Position or trade lookups that fail
// degrade that entry instead of failing the whole board.
func (s *ReportingService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	ctx, span := s.tracer.Start(ctx, "reporting.leaderboard")
	defer span.End()

	agents, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(agents))
	for i, agent := range agents {
		entry := LeaderboardEntry{Rank: i + 1, Agent: *agent}

		held, err := s.positions.ListByAgent(ctx, agent.ID)
		if err != nil {
			log.Printf("Warning: positions for %s: %v", agent.ID, err)
		} else {
			entry.Positions = sortedPositions(held)
		}

		trades, err := s.trades.ListByAgent(ctx, agent.ID, 1)
		if err != nil {
			log.Printf("Warning: last trade for %s: %v", agent.ID, err)
		} else if len(trades) > 0 {
			entry.LastTrade = trades[0]
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// RecentTrades pages through the global trade log, optionally filtered by
// action. Limit is clamped to [1,100].
func (s *ReportingService) RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error) {
	ctx, span := s.tracer.Start(ctx, "reporting.recent-trades")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if action != "" && action != domain.ActionBuy && action != domain.ActionSell {
		return nil, fmt.Errorf("invalid action filter: %s", action)
	}

	trades, err := s.trades.ListRecent(ctx, limit, offset, action)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// PerformanceSeries returns an agent's daily valuation history, oldest first.
func (s *ReportingService) PerformanceSeries(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "reporting.performance-series")
	defer span.End()

	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return nil, err
	}
	return s.snapshots.SeriesByAgent(ctx, agentID, days)
}

// Stats aggregates the whole competition into one view.
func (s *ReportingService) Stats(ctx context.Context) (*domain.CompetitionStats, error) {
	ctx, span := s.tracer.Start(ctx, "reporting.stats")
	defer span.End()

	agents, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	stats := &domain.CompetitionStats{TotalValue: decimal.Zero}
	if len(agents) == 0 {
		return stats, nil
	}

	best, worst := agents[0], agents[0]
	returnSum := 0.0
	for _, agent := range agents {
		stats.TotalValue = stats.TotalValue.Add(agent.CurrentValue)
		stats.TotalTrades += agent.TotalTrades
		stats.ActiveAgents++
		returnSum += agent.TotalReturn
		if agent.TotalReturn > best.TotalReturn {
			best = agent
		}
		if agent.TotalReturn < worst.TotalReturn {
			worst = agent
		}
	}
	stats.TopPerformer = best.Name
	stats.WorstPerformer = worst.Name
	stats.AvgReturn = returnSum / float64(len(agents))
	return stats, nil
}

func sortedPositions(held map[string]domain.Position) []domain.Position {
	positions := make([]domain.Position, 0, len(held))
	for _, pos := range held {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions
}
