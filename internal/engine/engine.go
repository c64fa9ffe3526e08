package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxTradesPerCycle caps how many non-HOLD decisions leave the
	// engine in one cycle.
	MaxTradesPerCycle = 5
	// minTradesPerCycle is the activity floor: a cycle with tradable
	// state should produce at least this many non-HOLD decisions.
	minTradesPerCycle = 2

	fallbackBuyFraction  = 0.10
	fallbackSellFraction = 0.30
)

// Engine reconciles the rule policy with the optional LLM planner and
// enforces the per-cycle activity floor and trade cap.
type Engine struct {
	rules     *RulePolicy
	planner   *TradePlanner
	minTrades int
	maxTrades int
	tracer    trace.Tracer
}

func New(rules *RulePolicy, planner *TradePlanner, minTrades, maxTrades int, tracer trace.Tracer) *Engine {
	if minTrades <= 0 {
		minTrades = minTradesPerCycle
	}
	if maxTrades <= 0 {
		maxTrades = MaxTradesPerCycle
	}
	return &Engine{
		rules:     rules,
		planner:   planner,
		minTrades: minTrades,
		maxTrades: maxTrades,
		tracer:    tracer,
	}
}

// Decide produces the cycle's trade decisions. The rule policy always
// runs; planner proposals are merged in for symbols the rules left at
// HOLD. If the merged set falls short of the activity floor, the
// deterministic fallback tops it up, and the non-HOLD tail beyond the
// cap is demoted to HOLD.
func (e *Engine) Decide(
	ctx context.Context,
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	lastSeen map[string]time.Time,
	prices map[string]decimal.Decimal,
	now time.Time,
) []domain.TradeDecision {
	_, span := e.tracer.Start(ctx, "engine.decide")
	defer span.End()

	decisions := e.rules.Decide(portfolio, sentiments, lastSeen, prices, now)

	if e.planner != nil {
		proposals, err := e.planner.Plan(ctx, portfolio, sentiments, prices)
		if err != nil {
			log.Printf("Warning: trade planner unavailable, rule policy only: %v", err)
		} else {
			decisions = mergeProposals(decisions, proposals, portfolio)
		}
	}

	if countNonHold(decisions) < e.minTrades && hasTradableState(portfolio) {
		decisions = e.addFallbackTrades(decisions, portfolio, sentiments, prices)
	}

	return capNonHold(decisions, e.maxTrades)
}

// mergeProposals folds planner proposals into the rule decisions.
// A proposal only lands on a symbol the rules left at HOLD (or did not
// cover); the deterministic policy always wins conflicts. SELL
// proposals exceeding the held quantity are trimmed to it.
func mergeProposals(decisions, proposals []domain.TradeDecision, portfolio domain.Portfolio) []domain.TradeDecision {
	index := make(map[string]int, len(decisions))
	for i, d := range decisions {
		index[d.Symbol] = i
	}

	for _, proposal := range proposals {
		if proposal.Action == domain.ActionSell {
			held := portfolio.Quantity(proposal.Symbol)
			if held == 0 {
				continue
			}
			if proposal.Quantity > held {
				proposal.Quantity = held
			}
		}
		proposal.Reasoning = "planner: " + proposal.Reasoning

		if i, ok := index[proposal.Symbol]; ok {
			if decisions[i].Action == domain.ActionHold {
				proposal.SentimentScore = decisions[i].SentimentScore
				decisions[i] = proposal
			}
			continue
		}
		index[proposal.Symbol] = len(decisions)
		decisions = append(decisions, proposal)
	}
	return decisions
}

// addFallbackTrades tops the decision list up to the activity floor:
// first the best uncovered buy opportunity at a conservative size, then
// a partial profit-take on the largest holding not already being sold.
func (e *Engine) addFallbackTrades(
	decisions []domain.TradeDecision,
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	prices map[string]decimal.Decimal,
) []domain.TradeDecision {
	active := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if d.Action != domain.ActionHold {
			active[d.Symbol] = true
		}
	}

	if countNonHold(decisions) < e.minTrades && portfolio.Cash.IsPositive() {
		if buy, ok := bestUncoveredBuy(portfolio, sentiments, prices, active); ok {
			decisions = upsertDecision(decisions, buy)
			active[buy.Symbol] = true
		}
	}

	if countNonHold(decisions) < e.minTrades {
		if sell, ok := partialProfitSell(portfolio, prices, active); ok {
			decisions = upsertDecision(decisions, sell)
		}
	}

	return decisions
}

func bestUncoveredBuy(
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	prices map[string]decimal.Decimal,
	active map[string]bool,
) (domain.TradeDecision, bool) {
	best := ""
	bestScore := -1.0
	for _, symbol := range sortedKeys(sentiments) {
		if active[symbol] {
			continue
		}
		price, ok := prices[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		if sentiments[symbol].Score > bestScore {
			best = symbol
			bestScore = sentiments[symbol].Score
		}
	}
	if best == "" {
		return domain.TradeDecision{}, false
	}

	price := prices[best]
	quantity := buyQuantity(portfolio.Cash, fallbackBuyFraction, price)
	return domain.TradeDecision{
		Symbol:         best,
		Action:         domain.ActionBuy,
		Quantity:       quantity,
		Price:          price,
		Reasoning:      fmt.Sprintf("activity floor: %s is the strongest uncovered opportunity (score %.3f)", best, bestScore),
		Confidence:     0.4,
		SentimentScore: bestScore,
	}, true
}

func partialProfitSell(
	portfolio domain.Portfolio,
	prices map[string]decimal.Decimal,
	active map[string]bool,
) (domain.TradeDecision, bool) {
	best := ""
	var bestQty int64
	for _, symbol := range sortedPositionKeys(portfolio.Positions) {
		if active[symbol] {
			continue
		}
		if qty := portfolio.Positions[symbol].Quantity; qty > bestQty {
			best = symbol
			bestQty = qty
		}
	}
	if best == "" {
		return domain.TradeDecision{}, false
	}

	quantity := int64(math.Ceil(float64(bestQty) * fallbackSellFraction))
	if quantity > bestQty {
		quantity = bestQty
	}
	price := prices[best]
	if !price.IsPositive() {
		price = portfolio.Positions[best].CostBasis
	}
	return domain.TradeDecision{
		Symbol:     best,
		Action:     domain.ActionSell,
		Quantity:   quantity,
		Price:      price,
		Reasoning:  fmt.Sprintf("activity floor: taking partial profits on %s (%d of %d shares)", best, quantity, bestQty),
		Confidence: 0.3,
	}, true
}

// upsertDecision replaces an existing HOLD for the symbol or appends.
func upsertDecision(decisions []domain.TradeDecision, d domain.TradeDecision) []domain.TradeDecision {
	for i := range decisions {
		if decisions[i].Symbol == d.Symbol {
			decisions[i] = d
			return decisions
		}
	}
	return append(decisions, d)
}

// capNonHold demotes non-HOLD decisions beyond the cap back to HOLD,
// keeping the highest-confidence trades.
func capNonHold(decisions []domain.TradeDecision, maxTrades int) []domain.TradeDecision {
	if countNonHold(decisions) <= maxTrades {
		return decisions
	}

	idx := make([]int, 0, len(decisions))
	for i, d := range decisions {
		if d.Action != domain.ActionHold {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return decisions[idx[a]].Confidence > decisions[idx[b]].Confidence
	})
	for _, i := range idx[maxTrades:] {
		decisions[i].Action = domain.ActionHold
		decisions[i].Quantity = 0
		decisions[i].Reasoning += " (demoted: cycle trade cap reached)"
	}
	return decisions
}

func countNonHold(decisions []domain.TradeDecision) int {
	count := 0
	for _, d := range decisions {
		if d.Action != domain.ActionHold {
			count++
		}
	}
	return count
}

func hasTradableState(portfolio domain.Portfolio) bool {
	return portfolio.Cash.IsPositive() || len(portfolio.Positions) > 0
}
