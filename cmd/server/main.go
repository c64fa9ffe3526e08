package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-arena/internal/agent"
	"agent-arena/internal/bot"
	"agent-arena/internal/cache"
	"agent-arena/internal/collector"
	"agent-arena/internal/config"
	"agent-arena/internal/db"
	"agent-arena/internal/engine"
	"agent-arena/internal/handler"
	"agent-arena/internal/job"
	"agent-arena/internal/ledger"
	"agent-arena/internal/provider"
	"agent-arena/internal/repository"
	"agent-arena/internal/sentiment"
	"agent-arena/internal/service"
	"agent-arena/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "agent-arena/docs"
)

type migrator interface {
	RunMigrations(ctx context.Context) error
}

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer

	startPollerFunc = func(p *job.PricePoller, ctx context.Context) { go p.Start(ctx) }
	startCycleFunc  = func(j *job.CycleJob, ctx context.Context) {
		go func() {
			if err := j.Start(ctx); err != nil {
				log.Printf("Warning: cycle job stopped: %v", err)
			}
		}()
	}
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Agent Arena API
// @version         1.0
// @description     Paper-trading competition between autonomous agents.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in   header
// @name X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations
	agentRepo := repository.NewAgentRepository(db.Pool, tracer)
	tradeRepo := repository.NewTradeRepository(db.Pool, tracer)
	positionRepo := repository.NewPositionRepository(db.Pool, tracer)
	perfRepo := repository.NewPerformanceRepository(db.Pool, tracer)
	if db.Pool != nil {
		for _, m := range []migrator{agentRepo, tradeRepo, positionRepo, perfRepo} {
			if err := m.RunMigrations(ctx); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}
	}

	// Signal providers and collectors
	market := provider.NewMarketDataProvider(tracer)
	reddit := provider.NewRedditProvider(tracer)
	stocktwits := provider.NewStocktwitsProvider(tracer)
	newsFeed := provider.NewNewsRSSProvider(tracer)

	judge := sentiment.NewTextJudge(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	collectors := []collector.Collector{
		collector.NewSocialCollector(reddit, stocktwits, judge, cfg.RedditSubs, cfg.SocialPostsMax, tracer),
		collector.NewNewsCollector([]collector.HeadlineSource{newsFeed, market}, judge, cfg.NewsFeedLimit, tracer),
		collector.NewTechnicalCollector(market, tracer),
		collector.NewVolumeCollector(market, tracer),
	}
	analyzer := sentiment.NewAnalyzer(collectors, tracer)

	// Decision engine and trade ledger
	params := engine.DefaultRuleParams()
	params.BuyCashFraction = cfg.BuyCashFraction
	params.ConcentrationCap = cfg.ConcentrationCap
	params.HoldingPeriodDays = cfg.HoldingPeriodDay
	params.StaleDataDays = cfg.StaleDataDays
	decide := engine.New(
		engine.NewRulePolicy(params),
		engine.NewTradePlanner(cfg.OpenAIAPIKey, cfg.OpenAIModel, tracer),
		cfg.MinTradesPerRun,
		cfg.MaxTradesPerRun,
		tracer,
	)
	book := ledger.New(cfg.ConcentrationCap)

	priceService := service.NewPriceService(tracer, market, cache.Client)
	runner := agent.NewRunner(
		agentRepo, tradeRepo, positionRepo, perfRepo,
		analyzer, decide, book, priceService,
		decimal.NewFromFloat(cfg.StartingCash), tracer,
	)
	reporting := service.NewReportingService(tracer, agentRepo, tradeRepo, positionRepo, perfRepo)

	// Background jobs (stopped by ctx cancel)
	poller := job.NewPricePoller(tracer, priceService, cfg.PricePollSecs)
	startPollerFunc(poller, ctx)
	cycleJob := job.NewCycleJob(tracer, runner, agent.DefaultAgents, cfg.CycleCronSpec)
	startCycleFunc(cycleJob, ctx)

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(reporting)

	// Create handlers and routes
	h := handler.New(tracer, reporting, runner, priceService, agent.DefaultAgents)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("agent-arena"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
