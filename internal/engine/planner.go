package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"agent-arena/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// TradePlanner asks the LLM for trade proposals given the portfolio and
// the cycle's sentiment summary. Its output augments the rule policy;
// a planner failure never blocks the cycle.
type TradePlanner struct {
	llm    LLMClient
	model  string
	tracer trace.Tracer
}

func NewTradePlanner(apiKey, model string, tracer trace.Tracer) *TradePlanner {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &TradePlanner{
		llm:    &openAIClient{client: client},
		model:  model,
		tracer: tracer,
	}
}

// Plan returns the parsed, validated trade proposals. Proposals for
// symbols off the watch-list or without a resolvable price are dropped.
func (p *TradePlanner) Plan(
	ctx context.Context,
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	prices map[string]decimal.Decimal,
) ([]domain.TradeDecision, error) {
	ctx, span := p.tracer.Start(ctx, "engine.plan-trades")
	defer span.End()

	prompt := buildPlannerPrompt(portfolio, sentiments, prices)
	completion, err := p.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(plannerSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planner completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty planner completion")
	}

	decisions := ParseTradeBlocks(completion.Choices[0].Message.Content)

	kept := decisions[:0]
	for _, d := range decisions {
		if !domain.Tracked(d.Symbol) {
			continue
		}
		price, ok := prices[d.Symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		d.Price = price
		if agg, ok := sentiments[d.Symbol]; ok {
			d.SentimentScore = agg.Score
		}
		kept = append(kept, d)
	}
	return kept, nil
}

const plannerSystemPrompt = "You are a paper-trading strategist competing on risk-adjusted returns. " +
	"Propose trades only when the evidence supports them, and respond with trade blocks in this EXACT format:\n\n" +
	"TRADE_1:\n" +
	"SYMBOL: [stock symbol]\n" +
	"ACTION: [BUY or SELL]\n" +
	"QUANTITY: [number of shares]\n" +
	"REASONING: [why this trade makes sense]\n" +
	"CONFIDENCE: [0.1 to 1.0]\n\n" +
	"TRADE_2:\n[same format]\n\n" +
	"Only use symbols from the provided watch-list. SELL only what is held."

func buildPlannerPrompt(
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	prices map[string]decimal.Decimal,
) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Available cash: $%s\n", portfolio.Cash.StringFixed(2))
	fmt.Fprintf(&sb, "Total portfolio value: $%s\n\n", portfolio.TotalValue(prices).StringFixed(2))

	sb.WriteString("Current positions:\n")
	if len(portfolio.Positions) == 0 {
		sb.WriteString("- none\n")
	}
	for _, symbol := range sortedPositionKeys(portfolio.Positions) {
		pos := portfolio.Positions[symbol]
		fmt.Fprintf(&sb, "- %s: %d shares, cost basis $%s\n", symbol, pos.Quantity, pos.CostBasis.StringFixed(2))
	}

	sb.WriteString("\nSentiment by symbol (0=very bearish, 1=very bullish):\n")
	for _, symbol := range sortedKeys(sentiments) {
		agg := sentiments[symbol]
		price := "n/a"
		if p, ok := prices[symbol]; ok {
			price = "$" + p.StringFixed(2)
		}
		fmt.Fprintf(&sb, "- %s: score %.3f, confidence %.2f, price %s\n", symbol, agg.Score, agg.Confidence, price)
	}

	return sb.String()
}

var (
	tradeBlockPattern = regexp.MustCompile(`TRADE_\d+:`)
	symbolPattern     = regexp.MustCompile(`(?i)SYMBOL:\s*([A-Z]+)`)
	actionPattern     = regexp.MustCompile(`(?i)ACTION:\s*(BUY|SELL)`)
	quantityPattern   = regexp.MustCompile(`(?i)QUANTITY:\s*(\d+)`)
	reasoningPattern  = regexp.MustCompile(`(?is)REASONING:\s*(.+?)(?:CONFIDENCE:|$)`)
	confidencePattern = regexp.MustCompile(`(?i)CONFIDENCE:\s*([0-9.]+)`)
)

// ParseTradeBlocks extracts trade decisions from a TRADE_n formatted
// reply. A block missing symbol, action, or quantity is dropped;
// well-formed siblings are still kept.
func ParseTradeBlocks(response string) []domain.TradeDecision {
	var decisions []domain.TradeDecision
	for _, block := range tradeBlockPattern.Split(response, -1) {
		if strings.TrimSpace(block) == "" {
			continue
		}

		symbolMatch := symbolPattern.FindStringSubmatch(block)
		actionMatch := actionPattern.FindStringSubmatch(block)
		quantityMatch := quantityPattern.FindStringSubmatch(block)
		if symbolMatch == nil || actionMatch == nil || quantityMatch == nil {
			continue
		}
		quantity, err := strconv.ParseInt(quantityMatch[1], 10, 64)
		if err != nil || quantity <= 0 {
			continue
		}

		reasoning := "no reasoning provided"
		if m := reasoningPattern.FindStringSubmatch(block); m != nil && strings.TrimSpace(m[1]) != "" {
			reasoning = strings.TrimSpace(m[1])
		}
		confidence := 0.5
		if m := confidencePattern.FindStringSubmatch(block); m != nil {
			if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
				confidence = clampFloat(parsed, 0.1, 1.0)
			}
		}

		decisions = append(decisions, domain.TradeDecision{
			Symbol:     strings.ToUpper(symbolMatch[1]),
			Action:     domain.TradeAction(strings.ToUpper(actionMatch[1])),
			Quantity:   quantity,
			Reasoning:  reasoning,
			Confidence: confidence,
		})
	}
	return decisions
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
