package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding of one symbol by one agent. Quantity is whole shares;
// CostBasis is the weighted-average cost per share. LastBuyAt drives the
// holding-period exit rules.
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	LastBuyAt time.Time       `json:"last_buy_at"`
}

// MarketValue is quantity times the given price per share.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// Portfolio is the per-agent cash and position state for one cycle. The
// pipeline treats it as an immutable value: ledger operations return a new
// Portfolio rather than mutating in place.
type Portfolio struct {
	AgentID   string              `json:"agent_id"`
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

func NewPortfolio(agentID string, cash decimal.Decimal) Portfolio {
	return Portfolio{AgentID: agentID, Cash: cash, Positions: map[string]Position{}}
}

// Clone returns a deep copy; mutating the copy's position map never touches
// the original.
func (p Portfolio) Clone() Portfolio {
	positions := make(map[string]Position, len(p.Positions))
	for symbol, pos := range p.Positions {
		positions[symbol] = pos
	}
	return Portfolio{AgentID: p.AgentID, Cash: p.Cash, Positions: positions}
}

// Quantity returns the held share count for symbol, zero when absent.
func (p Portfolio) Quantity(symbol string) int64 {
	return p.Positions[symbol].Quantity
}

// TotalValue is cash plus the sum of position market values. A symbol missing
// from prices falls back to its stored cost basis (last-known value).
func (p Portfolio) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := p.Cash
	for symbol, pos := range p.Positions {
		price, ok := prices[symbol]
		if !ok || price.IsZero() {
			price = pos.CostBasis
		}
		total = total.Add(pos.MarketValue(price))
	}
	return total
}
