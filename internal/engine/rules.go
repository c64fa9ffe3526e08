package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
)

// RuleParams tune the deterministic trading policy.
type RuleParams struct {
	BuyThreshold      float64
	SellThreshold     float64
	BuyCashFraction   float64
	ConcentrationCap  float64
	HoldingPeriodDays int
	StaleDataDays     int
}

func DefaultRuleParams() RuleParams {
	return RuleParams{
		BuyThreshold:      0.70,
		SellThreshold:     0.30,
		BuyCashFraction:   0.15,
		ConcentrationCap:  0.20,
		HoldingPeriodDays: 7,
		StaleDataDays:     3,
	}
}

// RulePolicy is the deterministic 70/30 sentiment policy. Strong
// sentiment opens or closes positions, lingering neutral positions are
// trimmed, and holdings the pipeline can no longer see are liquidated.
type RulePolicy struct {
	params RuleParams
}

func NewRulePolicy(params RuleParams) *RulePolicy {
	return &RulePolicy{params: params}
}

// Decide evaluates every symbol with a sentiment plus every held
// symbol, in deterministic symbol order. lastSeen records when a held
// symbol last had a real sentiment reading; held symbols without one
// this cycle (absent or fallback-only) are liquidated once the last
// real reading is older than the stale threshold.
func (p *RulePolicy) Decide(
	portfolio domain.Portfolio,
	sentiments map[string]domain.AggregatedSentiment,
	lastSeen map[string]time.Time,
	prices map[string]decimal.Decimal,
	now time.Time,
) []domain.TradeDecision {
	decisions := make([]domain.TradeDecision, 0, len(sentiments)+len(portfolio.Positions))

	for _, symbol := range sortedKeys(sentiments) {
		agg := sentiments[symbol]
		// A fallback-only sentiment carries no information about a held
		// position; the staleness pass below decides its fate.
		if portfolio.Quantity(symbol) > 0 && !agg.HasSignal() {
			continue
		}
		price, ok := prices[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		decisions = append(decisions, p.decideSymbol(portfolio, agg, price, prices, now))
	}

	// Held symbols the sentiment pass produced no real signal for.
	for _, symbol := range sortedPositionKeys(portfolio.Positions) {
		if agg, covered := sentiments[symbol]; covered && agg.HasSignal() {
			continue
		}
		pos := portfolio.Positions[symbol]
		price := prices[symbol]
		if !price.IsPositive() {
			price = pos.CostBasis
		}

		if !domain.Tracked(symbol) {
			decisions = append(decisions, domain.TradeDecision{
				Symbol:    symbol,
				Action:    domain.ActionSell,
				Quantity:  pos.Quantity,
				Price:     price,
				Reasoning: fmt.Sprintf("%s is no longer on the watch-list - liquidating %d shares", symbol, pos.Quantity),
				Confidence: 0.9,
			})
			continue
		}

		seen, ok := lastSeen[symbol]
		if !ok || now.Sub(seen) > time.Duration(p.params.StaleDataDays)*24*time.Hour {
			decisions = append(decisions, domain.TradeDecision{
				Symbol:    symbol,
				Action:    domain.ActionSell,
				Quantity:  pos.Quantity,
				Price:     price,
				Reasoning: fmt.Sprintf("no sentiment data for %s in over %d days - liquidating %d shares", symbol, p.params.StaleDataDays, pos.Quantity),
				Confidence: 0.6,
			})
		}
	}

	return decisions
}

func (p *RulePolicy) decideSymbol(
	portfolio domain.Portfolio,
	agg domain.AggregatedSentiment,
	price decimal.Decimal,
	prices map[string]decimal.Decimal,
	now time.Time,
) domain.TradeDecision {
	symbol := agg.Symbol
	held := portfolio.Quantity(symbol)
	confidence := math.Abs(agg.Score-0.5) * 2

	decision := domain.TradeDecision{
		Symbol:         symbol,
		Action:         domain.ActionHold,
		Price:          price,
		Confidence:     confidence,
		SentimentScore: agg.Score,
	}

	switch {
	case agg.Score >= p.params.BuyThreshold:
		if p.positionBelowCap(portfolio, symbol, price, prices) {
			quantity := buyQuantity(portfolio.Cash, p.params.BuyCashFraction, price)
			decision.Action = domain.ActionBuy
			decision.Quantity = quantity
			decision.Reasoning = fmt.Sprintf("strong positive sentiment (%.1f%%) - buying %d shares", agg.Score*100, quantity)
		} else {
			decision.Reasoning = fmt.Sprintf("strong positive sentiment (%.1f%%) but position already at concentration cap", agg.Score*100)
		}

	case agg.Score <= p.params.SellThreshold:
		if held > 0 {
			decision.Action = domain.ActionSell
			decision.Quantity = held
			decision.Reasoning = fmt.Sprintf("strong negative sentiment (%.1f%%) - selling all %d shares", agg.Score*100, held)
		} else {
			decision.Reasoning = fmt.Sprintf("strong negative sentiment (%.1f%%) but no position to sell", agg.Score*100)
		}

	case agg.Score >= 0.40 && agg.Score <= 0.60 && held > 0 && p.heldTooLong(portfolio, symbol, now):
		quantity := int64(math.Ceil(float64(held) / 2))
		decision.Action = domain.ActionSell
		decision.Quantity = quantity
		decision.Reasoning = fmt.Sprintf("neutral sentiment (%.1f%%) on a position held over %d days - trimming %d of %d shares", agg.Score*100, p.params.HoldingPeriodDays, quantity, held)

	default:
		decision.Reasoning = fmt.Sprintf("neutral sentiment (%.1f%%) - holding", agg.Score*100)
	}

	return decision
}

func (p *RulePolicy) positionBelowCap(portfolio domain.Portfolio, symbol string, price decimal.Decimal, prices map[string]decimal.Decimal) bool {
	pos, held := portfolio.Positions[symbol]
	if !held {
		return true
	}
	total := portfolio.TotalValue(prices)
	if !total.IsPositive() {
		return true
	}
	limit := total.Mul(decimal.NewFromFloat(p.params.ConcentrationCap))
	return pos.MarketValue(price).LessThan(limit)
}

func (p *RulePolicy) heldTooLong(portfolio domain.Portfolio, symbol string, now time.Time) bool {
	pos, ok := portfolio.Positions[symbol]
	if !ok || pos.LastBuyAt.IsZero() {
		return false
	}
	return now.Sub(pos.LastBuyAt) > time.Duration(p.params.HoldingPeriodDays)*24*time.Hour
}

// buyQuantity sizes a buy to a fraction of available cash, floored to
// whole shares with a one-share minimum.
func buyQuantity(cash decimal.Decimal, fraction float64, price decimal.Decimal) int64 {
	budget := cash.Mul(decimal.NewFromFloat(fraction))
	quantity := budget.Div(price).IntPart()
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}

func sortedKeys(m map[string]domain.AggregatedSentiment) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPositionKeys(m map[string]domain.Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
