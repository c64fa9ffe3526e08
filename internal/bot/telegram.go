package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"agent-arena/internal/domain"
	"agent-arena/internal/service"

	tele "gopkg.in/telebot.v3"
)

type ReportingReader interface {
	Leaderboard(ctx context.Context) ([]service.LeaderboardEntry, error)
	RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error)
	Stats(ctx context.Context) (*domain.CompetitionStats, error)
}

// StartTelegramBot exposes the competition views over Telegram. No-op when
// the bot token is not configured.
func StartTelegramBot(reporting ReportingReader) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/leaderboard", func(c tele.Context) error {
		entries, err := reporting.Leaderboard(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching leaderboard: %v", err))
		}
		return c.Send(formatLeaderboard(entries))
	})

	b.Handle("/trades", func(c tele.Context) error {
		action := domain.TradeAction("")
		if args := c.Args(); len(args) > 0 {
			action = domain.TradeAction(strings.ToUpper(args[0]))
		}
		trades, err := reporting.RecentTrades(context.Background(), 10, 0, action)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching trades: %v", err))
		}
		return c.Send(formatTrades(trades))
	})

	b.Handle("/stats", func(c tele.Context) error {
		stats, err := reporting.Stats(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching stats: %v", err))
		}
		return c.Send(formatStats(stats))
	})

	b.Handle("/agent", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /agent sentiment-trader")
		}
		entries, err := reporting.Leaderboard(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching agents: %v", err))
		}
		id := strings.ToLower(args[0])
		for _, entry := range entries {
			if entry.Agent.ID == id {
				return c.Send(formatAgent(entry))
			}
		}
		return c.Send("Unknown agent: " + id)
	})

	log.Println("Telegram bot started")
	go b.Start()
}

func formatLeaderboard(entries []service.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "No agents competing yet"
	}
	var sb strings.Builder
	sb.WriteString("Leaderboard\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d. %s  $%s  (%+.1f%%)\n",
			e.Rank, e.Agent.Name, e.Agent.CurrentValue.StringFixed(2), e.Agent.TotalReturn*100)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTrades(trades []*domain.ExecutedTrade) string {
	if len(trades) == 0 {
		return "No trades yet"
	}
	var sb strings.Builder
	sb.WriteString("Recent trades\n")
	for _, t := range trades {
		fmt.Fprintf(&sb, "%s %s %d %s @ $%s (%s)\n",
			t.AgentID, t.Action, t.Quantity, t.Symbol, t.Price.StringFixed(2),
			t.ExecutedAt.Format("Jan 2 15:04"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(stats *domain.CompetitionStats) string {
	return fmt.Sprintf(
		"Competition stats\nAgents: %d\nTotal value: $%s\nTotal trades: %d\nBest: %s\nWorst: %s\nAvg return: %+.1f%%",
		stats.ActiveAgents, stats.TotalValue.StringFixed(2), stats.TotalTrades,
		stats.TopPerformer, stats.WorstPerformer, stats.AvgReturn*100,
	)
}

func formatAgent(entry service.LeaderboardEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (#%d)\nValue: $%s\nCash: $%s\nReturn: %+.1f%%\nWin rate: %.0f%%\nTrades: %d\n",
		entry.Agent.Name, entry.Rank, entry.Agent.CurrentValue.StringFixed(2),
		entry.Agent.Cash.StringFixed(2), entry.Agent.TotalReturn*100,
		entry.Agent.WinRate*100, entry.Agent.TotalTrades)
	if len(entry.Positions) == 0 {
		sb.WriteString("No open positions")
		return sb.String()
	}
	sb.WriteString("Positions:\n")
	for _, pos := range entry.Positions {
		fmt.Fprintf(&sb, "  %s x%d @ $%s\n", pos.Symbol, pos.Quantity, pos.CostBasis.StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}
