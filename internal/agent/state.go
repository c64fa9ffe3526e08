package agent

import (
	"fmt"
	"time"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
)

// CycleState carries one agent cycle through the pipeline stages. It is a
// value type: each stage derives a new state from the previous one, so a
// failed stage can never leave a half-mutated state behind.
type CycleState struct {
	AgentID    string
	Stage      domain.CycleStage
	StartedAt  time.Time
	Portfolio  domain.Portfolio
	Prices     map[string]decimal.Decimal
	Sentiments map[string]domain.AggregatedSentiment
	Decisions  []domain.TradeDecision
	Trades     []domain.ExecutedTrade
	Rejected   int
	Degraded   []string
	Errors     []string
}

func newCycleState(agentID string, portfolio domain.Portfolio, startedAt time.Time) CycleState {
	return CycleState{
		AgentID:   agentID,
		Stage:     domain.StageInitialized,
		StartedAt: startedAt,
		Portfolio: portfolio,
	}
}

// withStage marks a stage as reached.
func (s CycleState) withStage(stage domain.CycleStage) CycleState {
	s.Stage = stage
	return s
}

// withStageError marks a stage as failed and records the cause. Downstream
// stages still run with whatever the state holds.
func (s CycleState) withStageError(stage domain.CycleStage, err error) CycleState {
	s.Stage = stage.Failed()
	s.Errors = append(append([]string(nil), s.Errors...), fmt.Sprintf("%s: %v", stage, err))
	return s
}

func (s CycleState) result(status string, value decimal.Decimal, finishedAt time.Time) *domain.CycleResult {
	return &domain.CycleResult{
		AgentID:        s.AgentID,
		Status:         status,
		Stage:          s.Stage,
		Trades:         append([]domain.ExecutedTrade(nil), s.Trades...),
		Rejected:       s.Rejected,
		PortfolioValue: value,
		Degraded:       append([]string(nil), s.Degraded...),
		Errors:         append([]string(nil), s.Errors...),
		StartedAt:      s.StartedAt,
		FinishedAt:     finishedAt,
	}
}
