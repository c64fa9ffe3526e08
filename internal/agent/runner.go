package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"agent-arena/internal/domain"
	"agent-arena/internal/ledger"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// Definition identifies one competing agent. All agents share the same
// pipeline; they differ only in identity and strategy label.
type Definition struct {
	ID       string
	Name     string
	Strategy string
}

// DefaultAgents are the competitors bootstrapped on first run.
var DefaultAgents = []Definition{
	{ID: "sentiment-trader", Name: "Sentiment Trader", Strategy: "sentiment"},
	{ID: "momentum-rider", Name: "Momentum Rider", Strategy: "momentum"},
}

type AgentStore interface {
	EnsureAgent(ctx context.Context, id, name, strategy string, startingCash decimal.Decimal) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	UpdatePerformance(ctx context.Context, id string, cash, currentValue decimal.Decimal, totalReturn float64, trades, wins, closings int) error
}

type TradeStore interface {
	Insert(ctx context.Context, trade *domain.ExecutedTrade) error
}

type PositionStore interface {
	ListByAgent(ctx context.Context, agentID string) (map[string]domain.Position, error)
	ReplaceForAgent(ctx context.Context, agentID string, positions map[string]domain.Position) error
}

type SnapshotStore interface {
	UpsertDaily(ctx context.Context, snap *domain.DailySnapshot) error
	LatestBefore(ctx context.Context, agentID string, date time.Time) (decimal.Decimal, bool, error)
}

type SentimentAnalyzer interface {
	Analyze(ctx context.Context, symbols []string) map[string]domain.AggregatedSentiment
}

type DecisionEngine interface {
	Decide(ctx context.Context, portfolio domain.Portfolio, sentiments map[string]domain.AggregatedSentiment,
		lastSeen map[string]time.Time, prices map[string]decimal.Decimal, now time.Time) []domain.TradeDecision
}

type TradeLedger interface {
	Execute(decision domain.TradeDecision, portfolio domain.Portfolio, prices map[string]decimal.Decimal, now time.Time) (domain.Portfolio, *domain.ExecutedTrade, error)
}

type PriceSource interface {
	PriceMap(ctx context.Context, symbols []string) map[string]decimal.Decimal
}

// Runner drives the per-agent trading cycle through its stages. A cycle
// degrades gracefully through data and sentiment failures but aborts when
// the persistent store rejects a write: a half-persisted portfolio is worse
// than a skipped cycle.
type Runner struct {
	agents    AgentStore
	trades    TradeStore
	positions PositionStore
	snapshots SnapshotStore
	analyzer  SentimentAnalyzer
	engine    DecisionEngine
	ledger    TradeLedger
	prices    PriceSource

	startingCash decimal.Decimal
	tracer       trace.Tracer
	now          func() time.Time

	mu       sync.Mutex
	agentMu  map[string]*sync.Mutex
	lastSeen map[string]map[string]time.Time
}

func NewRunner(
	agents AgentStore,
	trades TradeStore,
	positions PositionStore,
	snapshots SnapshotStore,
	analyzer SentimentAnalyzer,
	engine DecisionEngine,
	tradeLedger TradeLedger,
	prices PriceSource,
	startingCash decimal.Decimal,
	tracer trace.Tracer,
) *Runner {
	return &Runner{
		agents:       agents,
		trades:       trades,
		positions:    positions,
		snapshots:    snapshots,
		analyzer:     analyzer,
		engine:       engine,
		ledger:       tradeLedger,
		prices:       prices,
		startingCash: startingCash,
		tracer:       tracer,
		now:          time.Now,
		agentMu:      make(map[string]*sync.Mutex),
		lastSeen:     make(map[string]map[string]time.Time),
	}
}

// RunAll executes one cycle for each agent in turn and never stops at a
// failed agent.
func (r *Runner) RunAll(ctx context.Context, defs []Definition) []*domain.CycleResult {
	results := make([]*domain.CycleResult, 0, len(defs))
	for _, def := range defs {
		result, err := r.RunCycle(ctx, def)
		if err != nil {
			log.Printf("Warning: cycle for %s failed: %v", def.ID, err)
		}
		results = append(results, result)
	}
	return results
}

// RunCycle runs one full trading cycle for one agent. The returned result is
// non-nil even on error so callers always get the structured outcome.
func (r *Runner) RunCycle(ctx context.Context, def Definition) (*domain.CycleResult, error) {
	ctx, span := r.tracer.Start(ctx, "agent-runner.run-cycle")
	defer span.End()

	lock := r.lockFor(def.ID)
	lock.Lock()
	defer lock.Unlock()

	startedAt := r.now().UTC()

	portfolio, err := r.loadPortfolio(ctx, def)
	if err != nil {
		state := newCycleState(def.ID, domain.Portfolio{}, startedAt).
			withStageError(domain.StageInitialized, err)
		return state.result("failed", decimal.Zero, r.now().UTC()), fmt.Errorf("load portfolio for %s: %w", def.ID, err)
	}

	state := newCycleState(def.ID, portfolio, startedAt)
	state = r.collectData(ctx, state)
	state = r.analyzeSentiment(ctx, state)
	state = r.makeDecisions(ctx, state)

	state, err = r.executeTrades(ctx, state)
	if err != nil {
		return state.result("failed", state.Portfolio.TotalValue(state.Prices), r.now().UTC()),
			fmt.Errorf("persist trades for %s: %w", def.ID, err)
	}

	value, degraded := ledger.Revalue(state.Portfolio, state.Prices)
	state.Degraded = degraded

	state, err = r.saveSnapshot(ctx, state, value)
	if err != nil {
		return state.result("failed", value, r.now().UTC()), fmt.Errorf("save snapshot for %s: %w", def.ID, err)
	}

	result := state.result("completed", value, r.now().UTC())
	result.Summary = summarize(def, result)
	log.Println(result.Summary)
	return result, nil
}

func (r *Runner) loadPortfolio(ctx context.Context, def Definition) (domain.Portfolio, error) {
	if err := r.agents.EnsureAgent(ctx, def.ID, def.Name, def.Strategy, r.startingCash); err != nil {
		return domain.Portfolio{}, err
	}
	agent, err := r.agents.GetByID(ctx, def.ID)
	if err != nil {
		return domain.Portfolio{}, err
	}
	positions, err := r.positions.ListByAgent(ctx, def.ID)
	if err != nil {
		return domain.Portfolio{}, err
	}
	if positions == nil {
		positions = map[string]domain.Position{}
	}
	return domain.Portfolio{AgentID: def.ID, Cash: agent.Cash, Positions: positions}, nil
}

func (r *Runner) collectData(ctx context.Context, state CycleState) CycleState {
	ctx, span := r.tracer.Start(ctx, "agent-runner.collect-data")
	defer span.End()

	symbols := append([]string(nil), domain.Watchlist...)
	for symbol := range state.Portfolio.Positions {
		if !domain.Tracked(symbol) {
			symbols = append(symbols, symbol)
		}
	}

	prices := r.prices.PriceMap(ctx, symbols)
	state.Prices = prices
	if len(prices) == 0 {
		return state.withStageError(domain.StageDataCollected, errors.New("no prices available"))
	}
	return state.withStage(domain.StageDataCollected)
}

func (r *Runner) analyzeSentiment(ctx context.Context, state CycleState) CycleState {
	ctx, span := r.tracer.Start(ctx, "agent-runner.analyze-sentiment")
	defer span.End()

	sentiments := r.analyzer.Analyze(ctx, domain.Watchlist)
	state.Sentiments = sentiments
	if len(sentiments) == 0 {
		return state.withStageError(domain.StageSentimentAnalyzed, errors.New("no sentiment produced"))
	}

	r.recordSightings(state.AgentID, sentiments)
	return state.withStage(domain.StageSentimentAnalyzed)
}

func (r *Runner) makeDecisions(ctx context.Context, state CycleState) CycleState {
	_, span := r.tracer.Start(ctx, "agent-runner.make-decisions")
	defer span.End()

	state.Decisions = r.engine.Decide(ctx, state.Portfolio, state.Sentiments, r.sightings(state.AgentID), state.Prices, r.now().UTC())
	return state.withStage(domain.StageDecisionsMade)
}

// executeTrades applies the decisions through the ledger. A rejected decision
// is counted and logged; a trade-log write failure aborts the cycle.
func (r *Runner) executeTrades(ctx context.Context, state CycleState) (CycleState, error) {
	_, span := r.tracer.Start(ctx, "agent-runner.execute-trades")
	defer span.End()

	now := r.now().UTC()
	portfolio := state.Portfolio
	for _, decision := range state.Decisions {
		if decision.Action == domain.ActionHold {
			continue
		}

		costBasis := portfolio.Positions[decision.Symbol].CostBasis

		next, trade, err := r.ledger.Execute(decision, portfolio, state.Prices, now)
		if err != nil {
			state.Rejected++
			log.Printf("Warning: %s %s %d %s rejected: %v", state.AgentID, decision.Action, decision.Quantity, decision.Symbol, err)
			continue
		}
		if trade == nil {
			continue
		}

		if trade.Action == domain.ActionSell {
			trade.Reasoning = sellOutcomeNote(trade, costBasis)
		}

		if err := r.trades.Insert(ctx, trade); err != nil {
			state = state.withStageError(domain.StageTradesExecuted, err)
			return state, err
		}

		portfolio = next
		state.Trades = append(state.Trades, *trade)
	}

	state.Portfolio = portfolio
	return state.withStage(domain.StageTradesExecuted), nil
}

// sellOutcomeNote appends the realized direction so the trade log shows wins
// without replaying cost basis history.
func sellOutcomeNote(trade *domain.ExecutedTrade, costBasis decimal.Decimal) string {
	if costBasis.IsZero() {
		return trade.Reasoning
	}
	if trade.Price.GreaterThan(costBasis) {
		return trade.Reasoning + " [realized gain]"
	}
	return trade.Reasoning + " [realized loss]"
}

func (r *Runner) saveSnapshot(ctx context.Context, state CycleState, value decimal.Decimal) (CycleState, error) {
	ctx, span := r.tracer.Start(ctx, "agent-runner.save-snapshot")
	defer span.End()

	if err := r.positions.ReplaceForAgent(ctx, state.AgentID, state.Portfolio.Positions); err != nil {
		return state.withStageError(domain.StageSnapshotSaved, err), err
	}

	totalReturn := 0.0
	if r.startingCash.IsPositive() {
		totalReturn, _ = value.Sub(r.startingCash).Div(r.startingCash).Float64()
	}

	wins, closings := sellOutcomes(state.Trades)
	if err := r.agents.UpdatePerformance(ctx, state.AgentID, state.Portfolio.Cash, value, totalReturn, len(state.Trades), wins, closings); err != nil {
		return state.withStageError(domain.StageSnapshotSaved, err), err
	}

	date := r.now().UTC().Truncate(24 * time.Hour)
	dailyReturn := 0.0
	if prev, ok, err := r.snapshots.LatestBefore(ctx, state.AgentID, date); err != nil {
		return state.withStageError(domain.StageSnapshotSaved, err), err
	} else if ok && prev.IsPositive() {
		dailyReturn, _ = value.Sub(prev).Div(prev).Float64()
	}

	positionsJSON, err := json.Marshal(state.Portfolio.Positions)
	if err != nil {
		positionsJSON = []byte("{}")
	}

	snap := &domain.DailySnapshot{
		AgentID:        state.AgentID,
		Date:           date,
		PortfolioValue: value,
		DailyReturn:    dailyReturn,
		PositionsJSON:  string(positionsJSON),
	}
	if err := r.snapshots.UpsertDaily(ctx, snap); err != nil {
		return state.withStageError(domain.StageSnapshotSaved, err), err
	}

	return state.withStage(domain.StageSnapshotSaved), nil
}

// sellOutcomes counts closed positions and how many of them realized a gain,
// read back from the outcome note stamped at execution time.
func sellOutcomes(trades []domain.ExecutedTrade) (wins, closings int) {
	for _, t := range trades {
		if t.Action != domain.ActionSell {
			continue
		}
		closings++
		if strings.HasSuffix(t.Reasoning, "[realized gain]") {
			wins++
		}
	}
	return wins, closings
}

func (r *Runner) lockFor(agentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.agentMu[agentID]
	if !ok {
		lock = &sync.Mutex{}
		r.agentMu[agentID] = lock
	}
	return lock
}

// recordSightings marks symbols with real (non-fallback) signal as seen now.
// Staleness tracking is process-local: after a restart every held symbol is
// stale until the next collection covers it, which errs toward liquidating
// positions nobody has data for.
func (r *Runner) recordSightings(agentID string, sentiments map[string]domain.AggregatedSentiment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen, ok := r.lastSeen[agentID]
	if !ok {
		seen = make(map[string]time.Time)
		r.lastSeen[agentID] = seen
	}
	now := r.now().UTC()
	for symbol, s := range sentiments {
		if s.HasSignal() {
			seen[symbol] = now
		}
	}
}

func (r *Runner) sightings(agentID string) map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]time.Time, len(r.lastSeen[agentID]))
	for symbol, ts := range r.lastSeen[agentID] {
		seen[symbol] = ts
	}
	return seen
}

func summarize(def Definition, result *domain.CycleResult) string {
	buys, sells := 0, 0
	for _, t := range result.Trades {
		switch t.Action {
		case domain.ActionBuy:
			buys++
		case domain.ActionSell:
			sells++
		}
	}
	return fmt.Sprintf("Cycle %s for %s: %d buys, %d sells, %d rejected, portfolio value %s",
		result.Stage, def.ID, buys, sells, result.Rejected, result.PortfolioValue.StringFixed(2))
}
