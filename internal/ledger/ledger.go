package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"agent-arena/internal/domain"

	"github.com/shopspring/decimal"
)

// Rejection reasons surfaced to callers. A rejected decision is a
// normal outcome, counted but never fatal to the cycle.
var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrConcentrationCap   = errors.New("concentration cap exceeded")
	ErrInvalidDecision    = errors.New("invalid decision")
)

// Ledger validates and applies trade decisions to a portfolio. It
// never mutates its input: Execute returns a new portfolio value, so a
// rejected decision leaves the caller's state untouched.
type Ledger struct {
	concentrationCap decimal.Decimal
}

func New(concentrationCap float64) *Ledger {
	if concentrationCap <= 0 || concentrationCap > 1 {
		concentrationCap = 0.20
	}
	return &Ledger{concentrationCap: decimal.NewFromFloat(concentrationCap)}
}

// Execute applies one decision. HOLD decisions pass through with no
// trade. The returned trade is nil when nothing was executed.
func (l *Ledger) Execute(decision domain.TradeDecision, portfolio domain.Portfolio, prices map[string]decimal.Decimal, now time.Time) (domain.Portfolio, *domain.ExecutedTrade, error) {
	if decision.Action == domain.ActionHold {
		return portfolio, nil, nil
	}
	if !decision.Action.IsValid() || decision.Quantity <= 0 || !decision.Price.IsPositive() {
		return portfolio, nil, fmt.Errorf("%s %d %s: %w", decision.Action, decision.Quantity, decision.Symbol, ErrInvalidDecision)
	}

	next := portfolio.Clone()
	cost := decision.Price.Mul(decimal.NewFromInt(decision.Quantity))

	switch decision.Action {
	case domain.ActionBuy:
		if cost.GreaterThan(next.Cash) {
			return portfolio, nil, fmt.Errorf("buy %d %s costs %s with %s cash: %w",
				decision.Quantity, decision.Symbol, cost.StringFixed(2), next.Cash.StringFixed(2), ErrInsufficientCash)
		}
		if err := l.checkConcentration(next, decision, cost, prices); err != nil {
			return portfolio, nil, err
		}
		next.Cash = next.Cash.Sub(cost)
		next.Positions[decision.Symbol] = applyBuy(next.Positions[decision.Symbol], decision, now)

	case domain.ActionSell:
		pos, ok := next.Positions[decision.Symbol]
		if !ok || pos.Quantity < decision.Quantity {
			return portfolio, nil, fmt.Errorf("sell %d %s with %d held: %w",
				decision.Quantity, decision.Symbol, pos.Quantity, ErrInsufficientShares)
		}
		next.Cash = next.Cash.Add(cost)
		pos.Quantity -= decision.Quantity
		if pos.Quantity == 0 {
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
		Price:      decision.Price,
		TotalValue: cost,
		Reasoning:  decision.Reasoning,
		Confidence: decision.Confidence,
		ExecutedAt: now.UTC(),
	}
	return next, trade, nil
}

// checkConcentration rejects a buy whose resulting position value would
// exceed the cap as a share of the post-trade total portfolio value.
func (l *Ledger) checkConcentration(portfolio domain.Portfolio, decision domain.TradeDecision, cost decimal.Decimal, prices map[string]decimal.Decimal) error {
	held := portfolio.Positions[decision.Symbol]
	newQty := held.Quantity + decision.Quantity
	newValue := decision.Price.Mul(decimal.NewFromInt(newQty))

	// Total value is unchanged by the buy itself: cash becomes stock.
	total := portfolio.TotalValue(prices)
	if !total.IsPositive() {
		return nil
	}
	limit := total.Mul(l.concentrationCap)
	if newValue.GreaterThan(limit) {
		return fmt.Errorf("buy %d %s would put position at %s of %s total (cap %s): %w",
			decision.Quantity, decision.Symbol, newValue.StringFixed(2), total.StringFixed(2),
			limit.StringFixed(2), ErrConcentrationCap)
	}
	return nil
}

// applyBuy folds a buy into a position with weighted-average cost basis.
func applyBuy(pos domain.Position, decision domain.TradeDecision, now time.Time) domain.Position {
	if pos.Quantity == 0 {
		return domain.Position{
			Symbol:    decision.Symbol,
			Quantity:  decision.Quantity,
			CostBasis: decision.Price,
			LastBuyAt: now.UTC(),
		}
	}

	oldValue := pos.CostBasis.Mul(decimal.NewFromInt(pos.Quantity))
	addValue := decision.Price.Mul(decimal.NewFromInt(decision.Quantity))
	newQty := pos.Quantity + decision.Quantity

	pos.Symbol = decision.Symbol
	pos.Quantity = newQty
	pos.CostBasis = oldValue.Add(addValue).DivRound(decimal.NewFromInt(newQty), 8)
	pos.LastBuyAt = now.UTC()
	return pos
}

// Revalue computes the portfolio's current worth. A held symbol with no
// quote falls back to its cost basis; each such degradation is logged
// and reported so callers can flag the valuation.
func Revalue(portfolio domain.Portfolio, prices map[string]decimal.Decimal) (decimal.Decimal, []string) {
	total := portfolio.Cash
	var degraded []string
	for symbol, pos := range portfolio.Positions {
		price, ok := prices[symbol]
		if !ok || !price.IsPositive() {
			price = pos.CostBasis
			degraded = append(degraded, symbol)
			log.Printf("Warning: no price for held %s, valuing %d shares at cost basis %s",
				symbol, pos.Quantity, pos.CostBasis.StringFixed(2))
		}
		total = total.Add(pos.MarketValue(price))
	}
	return total, degraded
}
