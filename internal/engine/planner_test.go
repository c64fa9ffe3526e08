package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agent-arena/internal/domain"

	"github.com/openai/openai-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type stubLLM struct {
	content string
	err     error
}

func (s *stubLLM) CreateChatCompletion(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestParseTradeBlocks(t *testing.T) {
	response := `Here is my plan.

TRADE_1:
SYMBOL: AAPL
ACTION: BUY
QUANTITY: 7
REASONING: strong momentum into earnings
CONFIDENCE: 0.8

TRADE_2:
SYMBOL: TSLA
ACTION: SELL
QUANTITY: not-a-number
REASONING: malformed on purpose
CONFIDENCE: 0.9

TRADE_3:
SYMBOL: MSFT
ACTION: SELL
QUANTITY: 3
REASONING: trimming into strength
CONFIDENCE: 2.5
`

	decisions := ParseTradeBlocks(response)
	if len(decisions) != 2 {
		t.Fatalf("expected 2 parsed blocks (1 malformed dropped), got %d", len(decisions))
	}
	if decisions[0].Symbol != "AAPL" || decisions[0].Action != domain.ActionBuy || decisions[0].Quantity != 7 {
		t.Fatalf("unexpected first decision: %+v", decisions[0])
	}
	if decisions[0].Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", decisions[0].Confidence)
	}
	if decisions[1].Symbol != "MSFT" || decisions[1].Confidence != 1.0 {
		t.Fatalf("expected MSFT with clamped confidence 1.0, got %+v", decisions[1])
	}
	if !strings.Contains(decisions[0].Reasoning, "momentum") {
		t.Fatalf("expected reasoning captured, got %q", decisions[0].Reasoning)
	}
}

func TestParseTradeBlocksEmptyResponse(t *testing.T) {
	if got := ParseTradeBlocks("no trades today, market is quiet"); len(got) != 0 {
		t.Fatalf("expected no decisions, got %+v", got)
	}
}

func TestPlannerDropsOffWatchlistAndUnpricedSymbols(t *testing.T) {
	llm := &stubLLM{content: `TRADE_1:
SYMBOL: AAPL
ACTION: BUY
QUANTITY: 5
REASONING: solid
CONFIDENCE: 0.7

TRADE_2:
SYMBOL: GME
ACTION: BUY
QUANTITY: 100
REASONING: off the watch-list
CONFIDENCE: 0.9

TRADE_3:
SYMBOL: MSFT
ACTION: BUY
QUANTITY: 2
REASONING: no price available
CONFIDENCE: 0.6
`}
	planner := &TradePlanner{llm: llm, model: "gpt-4o-mini", tracer: testTracer()}

	portfolio := domain.NewPortfolio("a1", money("10000"))
	sentiments := sentimentFor("AAPL", 0.75)
	prices := map[string]decimal.Decimal{"AAPL": money("150")}

	decisions, err := planner.Plan(context.Background(), portfolio, sentiments, prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected only AAPL to survive, got %+v", decisions)
	}
	if decisions[0].Symbol != "AAPL" || !decisions[0].Price.Equal(money("150")) {
		t.Fatalf("unexpected decision: %+v", decisions[0])
	}
	if decisions[0].SentimentScore != 0.75 {
		t.Fatalf("expected sentiment score attached, got %v", decisions[0].SentimentScore)
	}
}

func TestPlannerPromptListsPortfolioAndSentiment(t *testing.T) {
	portfolio := domain.Portfolio{
		AgentID: "a1",
		Cash:    money("2500"),
		Positions: map[string]domain.Position{
			"TSLA": {Symbol: "TSLA", Quantity: 4, CostBasis: money("210")},
		},
	}
	prices := map[string]decimal.Decimal{"AAPL": money("150"), "TSLA": money("220")}

	prompt := buildPlannerPrompt(portfolio, sentimentFor("AAPL", 0.8), prices)
	for _, want := range []string{"Available cash: $2500.00", "TSLA: 4 shares", "AAPL: score 0.800"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPlannerErrorPropagates(t *testing.T) {
	planner := &TradePlanner{llm: &stubLLM{err: errors.New("boom")}, model: "gpt-4o-mini", tracer: testTracer()}
	_, err := planner.Plan(context.Background(), domain.NewPortfolio("a1", money("100")), nil, nil)
	if err == nil {
		t.Fatalf("expected error from failing LLM")
	}
}

func TestNewTradePlannerRequiresKey(t *testing.T) {
	if planner := NewTradePlanner("  ", "gpt-4o-mini", testTracer()); planner != nil {
		t.Fatalf("expected nil planner without an API key")
	}
}
