package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agent-arena/internal/agent"
	"agent-arena/internal/domain"
	"agent-arena/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type stubReporting struct {
	entries []service.LeaderboardEntry
	trades  []*domain.ExecutedTrade
	series  []*domain.DailySnapshot
	stats   *domain.CompetitionStats
	err     error

	lastLimit  int
	lastAction domain.TradeAction
}

func (s *stubReporting) Leaderboard(ctx context.Context) ([]service.LeaderboardEntry, error) {
	return s.entries, s.err
}

func (s *stubReporting) RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error) {
	s.lastLimit, s.lastAction = limit, action
	if action != "" && action != domain.ActionBuy && action != domain.ActionSell {
		return nil, errors.New("invalid action filter")
	}
	return s.trades, s.err
}

func (s *stubReporting) PerformanceSeries(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.series, nil
}

func (s *stubReporting) Stats(ctx context.Context) (*domain.CompetitionStats, error) {
	return s.stats, s.err
}

type stubRunner struct {
	result *domain.CycleResult
	err    error
	lastID string
}

func (s *stubRunner) RunCycle(ctx context.Context, def agent.Definition) (*domain.CycleResult, error) {
	s.lastID = def.ID
	return s.result, s.err
}

type stubPrices struct {
	price decimal.Decimal
	err   error
}

func (s *stubPrices) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.price, s.err
}

func newTestRouter(reporting *stubReporting, runner *stubRunner, prices *stubPrices, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(testTracer, reporting, runner, prices, agent.DefaultAgents)
	h.RegisterRoutes(r, apiKey)
	return r
}

func TestGetLeaderboard(t *testing.T) {
	reporting := &stubReporting{entries: []service.LeaderboardEntry{
		{Rank: 1, Agent: domain.Agent{ID: "sentiment-trader", Name: "Sentiment Trader"}},
	}}
	r := newTestRouter(reporting, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/agents", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Agents []service.LeaderboardEntry `json:"agents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Agents) != 1 || body.Agents[0].Agent.ID != "sentiment-trader" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetTradesPassesFilter(t *testing.T) {
	reporting := &stubReporting{}
	r := newTestRouter(reporting, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/trades?limit=5&action=buy", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if reporting.lastLimit != 5 || reporting.lastAction != domain.ActionBuy {
		t.Fatalf("unexpected filter args: %d %s", reporting.lastLimit, reporting.lastAction)
	}
}

func TestGetTradesRejectsBadAction(t *testing.T) {
	r := newTestRouter(&stubReporting{}, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/trades?action=HOLD", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetPerformanceUnknownAgent(t *testing.T) {
	reporting := &stubReporting{err: errors.New("agent not found")}
	r := newTestRouter(reporting, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/agents/nobody/performance", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	reporting := &stubReporting{stats: &domain.CompetitionStats{ActiveAgents: 2, TopPerformer: "Alpha"}}
	r := newTestRouter(reporting, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/stats", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats domain.CompetitionStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if stats.TopPerformer != "Alpha" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetPriceUnsupportedSymbol(t *testing.T) {
	r := newTestRouter(&stubReporting{}, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/prices/DOGE", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTriggerCycleRequiresAPIKey(t *testing.T) {
	runner := &stubRunner{result: &domain.CycleResult{Status: "completed"}}
	r := newTestRouter(&stubReporting{}, runner, &stubPrices{}, "secret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/agents/sentiment-trader/run", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/agents/sentiment-trader/run", nil)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/agents/sentiment-trader/run", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", w.Code)
	}
	if runner.lastID != "sentiment-trader" {
		t.Fatalf("unexpected agent id: %s", runner.lastID)
	}
}

func TestTriggerCycleUnknownAgent(t *testing.T) {
	r := newTestRouter(&stubReporting{}, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/agents/nobody/run", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTriggerCycleReturnsFailureResult(t *testing.T) {
	runner := &stubRunner{
		result: &domain.CycleResult{Status: "failed", Stage: domain.StageSnapshotSaved.Failed()},
		err:    errors.New("db down"),
	}
	r := newTestRouter(&stubReporting{}, runner, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/agents/sentiment-trader/run", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body struct {
		Error  string              `json:"error"`
		Result *domain.CycleResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Result == nil || body.Result.Status != "failed" {
		t.Fatalf("expected structured failure result, got %+v", body)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubReporting{}, &stubRunner{}, &stubPrices{}, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
