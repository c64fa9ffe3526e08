package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CycleStage tracks pipeline progress for one agent cycle. A stage that fails
// records its *_FAILED variant; later stages continue with safe defaults.
type CycleStage string

const (
	StageInitialized       CycleStage = "INITIALIZED"
	StageDataCollected     CycleStage = "DATA_COLLECTED"
	StageSentimentAnalyzed CycleStage = "SENTIMENT_ANALYZED"
	StageDecisionsMade     CycleStage = "DECISIONS_MADE"
	StageTradesExecuted    CycleStage = "TRADES_EXECUTED"
	StageSnapshotSaved     CycleStage = "SNAPSHOT_SAVED"
)

// Failed returns the failure variant of a stage.
func (s CycleStage) Failed() CycleStage {
	if strings.HasSuffix(string(s), "_FAILED") {
		return s
	}
	return CycleStage(string(s) + "_FAILED")
}

func (s CycleStage) IsFailure() bool {
	return strings.HasSuffix(string(s), "_FAILED")
}

// CycleResult is the structured outcome of one agent cycle, returned to the
// scheduler, trigger endpoint, and Telegram notifier.
type CycleResult struct {
	AgentID        string          `json:"agent_id"`
	Status         string          `json:"status"`
	Stage          CycleStage      `json:"stage"`
	Trades         []ExecutedTrade `json:"trades"`
	Rejected       int             `json:"rejected"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Summary        string          `json:"summary"`
	Degraded       []string        `json:"degraded,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
