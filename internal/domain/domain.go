package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies an independent sentiment signal source.
type SourceKind string

const (
	SourceSocial    SourceKind = "social"
	SourceNews      SourceKind = "news"
	SourceTechnical SourceKind = "technical"
	SourceVolume    SourceKind = "volume"
	SourceFallback  SourceKind = "fallback"
)

// SignalReading is one source's opinion about one symbol during one cycle.
// Score is in [0,1] (0 = very bearish, 1 = very bullish). Readings are
// ephemeral: created fresh each cycle, never persisted.
type SignalReading struct {
	Source     SourceKind `json:"source"`
	Score      float64    `json:"score"`
	Confidence float64    `json:"confidence"`
	DataPoints int        `json:"data_points"`
}

// AggregatedSentiment is the confidence-and-prior-weighted combination of all
// available readings for one symbol.
type AggregatedSentiment struct {
	Symbol     string          `json:"symbol"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
	Readings   []SignalReading `json:"readings"`
	Rationale  string          `json:"rationale"`
}

// HasSignal reports whether at least one reading came from a real source.
// A fallback-only sentiment means no source produced data for the symbol.
func (a AggregatedSentiment) HasSignal() bool {
	for _, r := range a.Readings {
		if r.Source != SourceFallback {
			return true
		}
	}
	return false
}

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

func (a TradeAction) IsValid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// TradeDecision is a proposed action. HOLD and zero-quantity decisions are
// informational and never reach the ledger.
type TradeDecision struct {
	Symbol         string          `json:"symbol"`
	Action         TradeAction     `json:"action"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Reasoning      string          `json:"reasoning"`
	Confidence     float64         `json:"confidence"`
	SentimentScore float64         `json:"sentiment_score"`
}

// ExecutedTrade is a decision that passed ledger validation and was applied.
// The trade log is append-only.
type ExecutedTrade struct {
	ID         int64           `json:"id"`
	AgentID    string          `json:"agent_id"`
	Symbol     string          `json:"symbol"`
	Action     TradeAction     `json:"action"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"`
	Reasoning  string          `json:"reasoning"`
	Confidence float64         `json:"confidence"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Agent is a simulated trading agent persisted in the store.
type Agent struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Strategy     string          `json:"strategy"`
	Cash         decimal.Decimal `json:"cash"`
	CurrentValue decimal.Decimal `json:"current_value"`
	TotalReturn  float64         `json:"total_return"`
	WinRate      float64         `json:"win_rate"`
	TotalTrades  int             `json:"total_trades"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DailySnapshot is one row per agent per trading day, upserted on conflict.
type DailySnapshot struct {
	AgentID        string          `json:"agent_id"`
	Date           time.Time       `json:"date"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	DailyReturn    float64         `json:"daily_return"`
	PositionsJSON  string          `json:"positions_json,omitempty"`
}

// CompetitionStats is the aggregate view across all active agents.
type CompetitionStats struct {
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalTrades    int             `json:"total_trades"`
	ActiveAgents   int             `json:"active_agents"`
	TopPerformer   string          `json:"top_performer"`
	WorstPerformer string          `json:"worst_performer"`
	AvgReturn      float64         `json:"avg_return"`
}

// RawPost is a social-media mention with engagement metrics.
type RawPost struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	Sentiment string    `json:"sentiment,omitempty"`
	Symbols   []string  `json:"symbols"`
	CreatedAt time.Time `json:"created_at"`
}

// Headline is a single news title about one symbol.
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// PricePoint is one close in a historical price series, oldest first.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}
