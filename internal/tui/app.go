package tui

import (
	"context"
	"fmt"
	"time"

	"agent-arena/internal/domain"
	"agent-arena/internal/service"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Reporter is the read surface the TUI renders.
type Reporter interface {
	Leaderboard(ctx context.Context) ([]service.LeaderboardEntry, error)
	RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error)
	Stats(ctx context.Context) (*domain.CompetitionStats, error)
}

type view int

const (
	viewLeaderboard view = iota
	viewTrades
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	tableStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
)

type leaderboardMsg struct {
	entries []service.LeaderboardEntry
	stats   *domain.CompetitionStats
}

type tradesMsg struct {
	trades []*domain.ExecutedTrade
}

type errMsg struct {
	err error
}

// AppModel is the SSH leaderboard interface: a leaderboard view and a recent
// trades view, toggled with tab.
type AppModel struct {
	reporter Reporter
	username string

	active      view
	leaderboard table.Model
	trades      table.Model
	stats       *domain.CompetitionStats
	err         error

	width  int
	height int
}

func NewAppModel(reporter Reporter, username string) *AppModel {
	lb := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Agent", Width: 20},
			{Title: "Value", Width: 12},
			{Title: "Return", Width: 8},
			{Title: "Win rate", Width: 8},
			{Title: "Trades", Width: 6},
			{Title: "Last trade", Width: 24},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	tr := table.New(
		table.WithColumns([]table.Column{
			{Title: "When", Width: 13},
			{Title: "Agent", Width: 18},
			{Title: "Action", Width: 6},
			{Title: "Qty", Width: 5},
			{Title: "Symbol", Width: 6},
			{Title: "Price", Width: 10},
			{Title: "Total", Width: 11},
		}),
		table.WithHeight(12),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("229"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	lb.SetStyles(styles)
	tr.SetStyles(styles)

	return &AppModel{
		reporter:    reporter,
		username:    username,
		leaderboard: lb,
		trades:      tr,
	}
}

func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadLeaderboard, m.loadTrades)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.active == viewLeaderboard {
				m.active = viewTrades
			} else {
				m.active = viewLeaderboard
			}
			return m, nil
		case "r":
			m.err = nil
			return m, tea.Batch(m.loadLeaderboard, m.loadTrades)
		}

	case leaderboardMsg:
		m.stats = msg.stats
		m.leaderboard.SetRows(leaderboardRows(msg.entries))
		return m, nil

	case tradesMsg:
		m.trades.SetRows(tradeRows(msg.trades))
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	if m.active == viewLeaderboard {
		m.leaderboard, cmd = m.leaderboard.Update(msg)
	} else {
		m.trades, cmd = m.trades.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) View() string {
	title := titleStyle.Render("agent arena")
	if m.username != "" {
		title += statusStyle.Render("  " + m.username)
	}

	var body string
	if m.active == viewLeaderboard {
		body = tableStyle.Render(m.leaderboard.View())
	} else {
		body = tableStyle.Render(m.trades.View())
	}

	status := m.statusLine()
	help := statusStyle.Render("tab: switch view  r: refresh  q: quit")

	out := title + "\n" + body + "\n" + status + "\n" + help
	if m.err != nil {
		out += "\n" + errorStyle.Render("error: "+m.err.Error())
	}
	return out
}

func (m *AppModel) statusLine() string {
	if m.stats == nil {
		return statusStyle.Render("loading...")
	}
	return statusStyle.Render(fmt.Sprintf(
		"%d agents  $%s total  %d trades  best: %s",
		m.stats.ActiveAgents, m.stats.TotalValue.StringFixed(2), m.stats.TotalTrades, m.stats.TopPerformer,
	))
}

func (m *AppModel) loadLeaderboard() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := m.reporter.Leaderboard(ctx)
	if err != nil {
		return errMsg{err}
	}
	stats, err := m.reporter.Stats(ctx)
	if err != nil {
		return errMsg{err}
	}
	return leaderboardMsg{entries: entries, stats: stats}
}

func (m *AppModel) loadTrades() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	trades, err := m.reporter.RecentTrades(ctx, 25, 0, "")
	if err != nil {
		return errMsg{err}
	}
	return tradesMsg{trades: trades}
}

func leaderboardRows(entries []service.LeaderboardEntry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		last := "-"
		if e.LastTrade != nil {
			last = fmt.Sprintf("%s %d %s", e.LastTrade.Action, e.LastTrade.Quantity, e.LastTrade.Symbol)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", e.Rank),
			e.Agent.Name,
			"$" + e.Agent.CurrentValue.StringFixed(2),
			fmt.Sprintf("%+.1f%%", e.Agent.TotalReturn*100),
			fmt.Sprintf("%.0f%%", e.Agent.WinRate*100),
			fmt.Sprintf("%d", e.Agent.TotalTrades),
			last,
		})
	}
	return rows
}

func tradeRows(trades []*domain.ExecutedTrade) []table.Row {
	rows := make([]table.Row, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, table.Row{
			t.ExecutedAt.Format("Jan 2 15:04"),
			t.AgentID,
			string(t.Action),
			fmt.Sprintf("%d", t.Quantity),
			t.Symbol,
			"$" + t.Price.StringFixed(2),
			"$" + t.TotalValue.StringFixed(2),
		})
	}
	return rows
}
