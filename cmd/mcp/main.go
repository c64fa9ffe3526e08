package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-arena/internal/config"
	"agent-arena/internal/db"
	"agent-arena/internal/domain"
	"agent-arena/internal/repository"
	"agent-arena/internal/service"
	"agent-arena/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

// reportingReader is the read-only slice of the reporting service the MCP
// tools need. The server never exposes a write path.
type reportingReader interface {
	Leaderboard(ctx context.Context) ([]service.LeaderboardEntry, error)
	RecentTrades(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error)
	PerformanceSeries(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error)
	Stats(ctx context.Context) (*domain.CompetitionStats, error)
}

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initTracerFunc   = tracing.InitTracer

	newReportingServiceFunc = func(tracer trace.Tracer, pool repository.PgxPool) reportingReader {
		agents := repository.NewAgentRepository(pool, tracer)
		trades := repository.NewTradeRepository(pool, tracer)
		positions := repository.NewPositionRepository(pool, tracer)
		snapshots := repository.NewPerformanceRepository(pool, tracer)
		return service.NewReportingService(tracer, agents, trades, positions, snapshots)
	}
	runServerFunc     = runServer
	setupSignalNotify = signal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

type leaderboardInput struct{}

type leaderboardOutput struct {
	Entries []service.LeaderboardEntry `json:"entries"`
}

type tradesInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"number of trades to return, default 20, max 100"`
	Action string `json:"action,omitempty" jsonschema:"optional filter, BUY or SELL"`
}

type tradesOutput struct {
	Trades []*domain.ExecutedTrade `json:"trades"`
}

type performanceInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent identifier, e.g. sentiment-trader"`
	Days    int    `json:"days,omitempty" jsonschema:"days of history, default 30, max 365"`
}

type performanceOutput struct {
	Snapshots []*domain.DailySnapshot `json:"snapshots"`
}

type statsInput struct{}

func buildServer(reporting reportingReader) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agent-arena",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "leaderboard",
		Description: "Competition leaderboard: every active agent ranked by portfolio value, with open positions and last trade.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ leaderboardInput) (*mcp.CallToolResult, leaderboardOutput, error) {
		entries, err := reporting.Leaderboard(ctx)
		if err != nil {
			return nil, leaderboardOutput{}, fmt.Errorf("leaderboard: %w", err)
		}
		return nil, leaderboardOutput{Entries: entries}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_trades",
		Description: "Recent executed trades across all agents, newest first, optionally filtered by BUY or SELL.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in tradesInput) (*mcp.CallToolResult, tradesOutput, error) {
		trades, err := reporting.RecentTrades(ctx, in.Limit, 0, domain.TradeAction(in.Action))
		if err != nil {
			return nil, tradesOutput{}, fmt.Errorf("recent trades: %w", err)
		}
		return nil, tradesOutput{Trades: trades}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "agent_performance",
		Description: "Daily portfolio value series for one agent, oldest first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in performanceInput) (*mcp.CallToolResult, performanceOutput, error) {
		snapshots, err := reporting.PerformanceSeries(ctx, in.AgentID, in.Days)
		if err != nil {
			return nil, performanceOutput{}, fmt.Errorf("performance for %s: %w", in.AgentID, err)
		}
		return nil, performanceOutput{Snapshots: snapshots}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "competition_stats",
		Description: "Aggregate competition statistics: total value, trade counts, best and worst performer.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ statsInput) (*mcp.CallToolResult, *domain.CompetitionStats, error) {
		stats, err := reporting.Stats(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("stats: %w", err)
		}
		return nil, stats, nil
	})

	return server
}

func runServer(ctx context.Context, cfg *config.Config, server *mcp.Server) error {
	if cfg.MCPTransport == "http" {
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
			Handler: handler,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("MCP server shutdown error: %v", err)
			}
		}()
		log.Printf("MCP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	reporting := newReportingServiceFunc(tracer, db.Pool)
	server := buildServer(reporting)

	go func() {
		quit := make(chan os.Signal, 1)
		setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
		waitForSignalFunc(quit)
		cancel()
	}()

	if err := runServerFunc(ctx, cfg, server); err != nil {
		log.Fatalf("MCP server stopped: %v", err)
	}
	log.Println("MCP server exited")
}
