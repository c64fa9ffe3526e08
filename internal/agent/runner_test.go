package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

var testDef = Definition{ID: "sentiment-trader", Name: "Sentiment Trader", Strategy: "sentiment"}

func money(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

type fakeAgentStore struct {
	agents    map[string]*domain.Agent
	ensureErr error
	updateErr error

	lastTrades, lastWins, lastClosings int
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: make(map[string]*domain.Agent)}
}

func (f *fakeAgentStore) EnsureAgent(ctx context.Context, id, name, strategy string, startingCash decimal.Decimal) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, ok := f.agents[id]; !ok {
		f.agents[id] = &domain.Agent{ID: id, Name: name, Strategy: strategy, Cash: startingCash, CurrentValue: startingCash, IsActive: true}
	}
	return nil
}

func (f *fakeAgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, errors.New("agent not found")
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAgentStore) UpdatePerformance(ctx context.Context, id string, cash, currentValue decimal.Decimal, totalReturn float64, trades, wins, closings int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	a := f.agents[id]
	a.Cash = cash
	a.CurrentValue = currentValue
	a.TotalReturn = totalReturn
	a.TotalTrades += trades
	f.lastTrades, f.lastWins, f.lastClosings = trades, wins, closings
	return nil
}

type fakeTradeStore struct {
	trades    []domain.ExecutedTrade
	insertErr error
}

func (f *fakeTradeStore) Insert(ctx context.Context, trade *domain.ExecutedTrade) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	trade.ID = int64(len(f.trades) + 1)
	f.trades = append(f.trades, *trade)
	return nil
}

type fakePositionStore struct {
	positions  map[string]map[string]domain.Position
	replaceErr error
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: make(map[string]map[string]domain.Position)}
}

func (f *fakePositionStore) ListByAgent(ctx context.Context, agentID string) (map[string]domain.Position, error) {
	held := make(map[string]domain.Position, len(f.positions[agentID]))
	for symbol, pos := range f.positions[agentID] {
		held[symbol] = pos
	}
	return held, nil
}

func (f *fakePositionStore) ReplaceForAgent(ctx context.Context, agentID string, positions map[string]domain.Position) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	stored := make(map[string]domain.Position, len(positions))
	for symbol, pos := range positions {
		stored[symbol] = pos
	}
	f.positions[agentID] = stored
	return nil
}

type fakeSnapshotStore struct {
	snaps     map[string]*domain.DailySnapshot
	previous  decimal.Decimal
	hasPrev   bool
	upsertErr error
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: make(map[string]*domain.DailySnapshot)}
}

func (f *fakeSnapshotStore) UpsertDaily(ctx context.Context, snap *domain.DailySnapshot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.snaps[snap.AgentID+"/"+snap.Date.Format("2006-01-02")] = snap
	return nil
}

func (f *fakeSnapshotStore) LatestBefore(ctx context.Context, agentID string, date time.Time) (decimal.Decimal, bool, error) {
	return f.previous, f.hasPrev, nil
}

type fakeAnalyzer struct {
	sentiments map[string]domain.AggregatedSentiment
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, symbols []string) map[string]domain.AggregatedSentiment {
	return f.sentiments
}

type fakeEngine struct {
	decisions []domain.TradeDecision
}

func (f *fakeEngine) Decide(ctx context.Context, portfolio domain.Portfolio, sentiments map[string]domain.AggregatedSentiment,
	lastSeen map[string]time.Time, prices map[string]decimal.Decimal, now time.Time) []domain.TradeDecision {
	return f.decisions
}

type fakeLedger struct {
	rejectSymbols map[string]error
}

func (f *fakeLedger) Execute(decision domain.TradeDecision, portfolio domain.Portfolio, prices map[string]decimal.Decimal, now time.Time) (domain.Portfolio, *domain.ExecutedTrade, error) {
	if err, ok := f.rejectSymbols[decision.Symbol]; ok {
		return portfolio, nil, err
	}
	price := prices[decision.Symbol]
	next := portfolio.Clone()
	cost := price.Mul(decimal.NewFromInt(decision.Quantity))
	switch decision.Action {
	case domain.ActionBuy:
		next.Cash = next.Cash.Sub(cost)
		pos := next.Positions[decision.Symbol]
		pos.Symbol = decision.Symbol
		pos.Quantity += decision.Quantity
		pos.CostBasis = price
		next.Positions[decision.Symbol] = pos
	case domain.ActionSell:
		next.Cash = next.Cash.Add(cost)
		pos := next.Positions[decision.Symbol]
		pos.Quantity -= decision.Quantity
		if pos.Quantity <= 0 {
			delete(next.Positions, decision.Symbol)
		} else {
			next.Positions[decision.Symbol] = pos
		}
	}
	trade := &domain.ExecutedTrade{
		AgentID:    portfolio.AgentID,
		Symbol:     decision.Symbol,
		Action:     decision.Action,
		Quantity:   decision.Quantity,
		Price:      price,
		TotalValue: cost,
		Reasoning:  decision.Reasoning,
		ExecutedAt: now,
	}
	return next, trade, nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (f *fakePrices) PriceMap(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	return f.prices
}

type runnerFixture struct {
	agents    *fakeAgentStore
	trades    *fakeTradeStore
	positions *fakePositionStore
	snapshots *fakeSnapshotStore
	analyzer  *fakeAnalyzer
	engine    *fakeEngine
	ledger    *fakeLedger
	prices    *fakePrices
	runner    *Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		agents:    newFakeAgentStore(),
		trades:    &fakeTradeStore{},
		positions: newFakePositionStore(),
		snapshots: newFakeSnapshotStore(),
		analyzer: &fakeAnalyzer{sentiments: map[string]domain.AggregatedSentiment{
			"AAPL": {Symbol: "AAPL", Score: 0.8, Confidence: 0.6, Readings: []domain.SignalReading{{Source: domain.SourceSocial, Score: 0.8, Confidence: 0.6}}},
		}},
		engine: &fakeEngine{},
		ledger: &fakeLedger{},
		prices: &fakePrices{prices: map[string]decimal.Decimal{"AAPL": money(150), "TSLA": money(200)}},
	}
	f.runner = NewRunner(f.agents, f.trades, f.positions, f.snapshots, f.analyzer, f.engine, f.ledger, f.prices, money(10000), testTracer)
	return f
}

func TestRunCycleHappyPath(t *testing.T) {
	f := newRunnerFixture()
	f.engine.decisions = []domain.TradeDecision{
		{Symbol: "AAPL", Action: domain.ActionBuy, Quantity: 10, Reasoning: "bullish"},
	}

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "completed" || result.Stage != domain.StageSnapshotSaved {
		t.Fatalf("unexpected result: %s / %s", result.Status, result.Stage)
	}
	if len(result.Trades) != 1 || result.Trades[0].Symbol != "AAPL" {
		t.Fatalf("expected 1 AAPL trade, got %+v", result.Trades)
	}
	if len(f.trades.trades) != 1 {
		t.Fatalf("trade not persisted, got %d", len(f.trades.trades))
	}
	if f.positions.positions[testDef.ID]["AAPL"].Quantity != 10 {
		t.Fatalf("position not persisted: %+v", f.positions.positions[testDef.ID])
	}
	if len(f.snapshots.snaps) != 1 {
		t.Fatalf("expected daily snapshot, got %d", len(f.snapshots.snaps))
	}
	// 10000 - 10*150 + 10*150 held at market price
	if !result.PortfolioValue.Equal(money(10000)) {
		t.Fatalf("expected value 10000, got %s", result.PortfolioValue)
	}
}

func TestRunCycleBootstrapsAgent(t *testing.T) {
	f := newRunnerFixture()

	if _, err := f.runner.RunCycle(context.Background(), testDef); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agent, ok := f.agents.agents[testDef.ID]
	if !ok {
		t.Fatal("agent row not created")
	}
	if !agent.CurrentValue.Equal(money(10000)) {
		t.Fatalf("expected starting value 10000, got %s", agent.CurrentValue)
	}
}

func TestRunCycleHoldsAreNotExecuted(t *testing.T) {
	f := newRunnerFixture()
	f.engine.decisions = []domain.TradeDecision{
		{Symbol: "AAPL", Action: domain.ActionHold, Reasoning: "neutral"},
	}

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trades) != 0 || len(f.trades.trades) != 0 {
		t.Fatalf("HOLD must not reach the ledger: %+v", result.Trades)
	}
}

func TestRunCycleCountsRejections(t *testing.T) {
	f := newRunnerFixture()
	f.engine.decisions = []domain.TradeDecision{
		{Symbol: "AAPL", Action: domain.ActionBuy, Quantity: 10},
		{Symbol: "TSLA", Action: domain.ActionBuy, Quantity: 999},
	}
	f.ledger.rejectSymbols = map[string]error{"TSLA": errors.New("insufficient cash")}

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rejected != 1 {
		t.Fatalf("expected 1 rejection, got %d", result.Rejected)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected surviving trade, got %d", len(result.Trades))
	}
	if result.Status != "completed" {
		t.Fatalf("rejections must not fail the cycle: %s", result.Status)
	}
}

func TestRunCycleAbortsOnTradeStoreFailure(t *testing.T) {
	f := newRunnerFixture()
	f.engine.decisions = []domain.TradeDecision{
		{Symbol: "AAPL", Action: domain.ActionBuy, Quantity: 1},
	}
	f.trades.insertErr = errors.New("db down")

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err == nil {
		t.Fatal("expected error on trade store failure")
	}
	if result == nil || result.Status != "failed" {
		t.Fatalf("expected structured failure result, got %+v", result)
	}
	if result.Stage != domain.StageTradesExecuted.Failed() {
		t.Fatalf("expected TRADES_EXECUTED_FAILED, got %s", result.Stage)
	}
}

func TestRunCycleAbortsOnSnapshotFailure(t *testing.T) {
	f := newRunnerFixture()
	f.snapshots.upsertErr = errors.New("db down")

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err == nil {
		t.Fatal("expected error on snapshot failure")
	}
	if result.Stage != domain.StageSnapshotSaved.Failed() {
		t.Fatalf("expected SNAPSHOT_SAVED_FAILED, got %s", result.Stage)
	}
}

func TestRunCycleContinuesWithoutPrices(t *testing.T) {
	f := newRunnerFixture()
	f.prices.prices = map[string]decimal.Decimal{}

	result, err := f.runner.RunCycle(context.Background(), testDef)
	if err != nil {
		t.Fatalf("price outage must not abort the cycle: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Stage != domain.StageSnapshotSaved {
		t.Fatalf("expected SNAPSHOT_SAVED, got %s", result.Stage)
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "no prices") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected recorded data collection error, got %v", result.Errors)
	}
}

func TestRunCycleDailyReturn(t *testing.T) {
	f := newRunnerFixture()
	f.snapshots.previous = money(9000)
	f.snapshots.hasPrev = true

	if _, err := f.runner.RunCycle(context.Background(), testDef); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snap *domain.DailySnapshot
	for _, s := range f.snapshots.snaps {
		snap = s
	}
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	want := (10000.0 - 9000.0) / 9000.0
	if diff := snap.DailyReturn - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected daily return %.6f, got %.6f", want, snap.DailyReturn)
	}
}

func TestRunCycleWinCounting(t *testing.T) {
	f := newRunnerFixture()
	f.positions.positions[testDef.ID] = map[string]domain.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 10, CostBasis: money(100)},
		"TSLA": {Symbol: "TSLA", Quantity: 5, CostBasis: money(300)},
	}
	f.engine.decisions = []domain.TradeDecision{
		{Symbol: "AAPL", Action: domain.ActionSell, Quantity: 10, Reasoning: "exit"},
		{Symbol: "TSLA", Action: domain.ActionSell, Quantity: 5, Reasoning: "exit"},
	}

	if _, err := f.runner.RunCycle(context.Background(), testDef); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// AAPL sold at 150 vs basis 100 is a win; TSLA at 200 vs 300 is not.
	if f.agents.lastWins != 1 || f.agents.lastClosings != 2 {
		t.Fatalf("expected 1 win of 2 closings, got %d/%d", f.agents.lastWins, f.agents.lastClosings)
	}
}

func TestRunAllSurvivesFailingAgent(t *testing.T) {
	f := newRunnerFixture()
	f.agents.ensureErr = errors.New("db down")

	results := f.runner.RunAll(context.Background(), DefaultAgents)
	if len(results) != len(DefaultAgents) {
		t.Fatalf("expected %d results, got %d", len(DefaultAgents), len(results))
	}
	for _, r := range results {
		if r.Status != "failed" {
			t.Fatalf("expected failed result, got %s", r.Status)
		}
	}
}
